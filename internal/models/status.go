package models

// Status summarizes persisted indexes and the active settings.
type Status struct {
	Indexes        int           `json:"indexes"`
	Chunks         int           `json:"chunks"`
	DiskUsageBytes int64         `json:"disk_usage_bytes"`
	ChatEnabled    bool          `json:"chat_enabled"`
	Config         *StatusConfig `json:"config,omitempty"`
}

// StatusConfig holds the settings reported by status.
type StatusConfig struct {
	EmbeddingProvider   string `json:"embedding_provider"`
	EmbeddingDimensions int    `json:"embedding_dimensions"`
	ChunkSize           int    `json:"chunk_size"`
	ChunkOverlap        int    `json:"chunk_overlap"`
	TopK                int    `json:"top_k"`
	ContextK            int    `json:"context_k"`
	Hybrid              bool   `json:"hybrid"`
	Model               string `json:"model"`
	UploadDir           string `json:"upload_dir"`
	IndexDir            string `json:"index_dir"`
}
