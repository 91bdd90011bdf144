// Package models defines core data structures for loaded records, chunks, chat turns, and answers.
package models

import "time"

// Record is a unit of loaded text with its provenance. A PDF yields one record
// per page; plain text and word processor files yield a single record.
type Record struct {
	Text     string                 `json:"text"`
	Source   string                 `json:"source"`
	Page     int                    `json:"page"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Chunk is a bounded passage cut from a Record, the unit that is embedded and retrieved.
type Chunk struct {
	ID       string                 `json:"id" db:"id"`
	Text     string                 `json:"text" db:"content"`
	Source   string                 `json:"source" db:"source"`
	Page     int                    `json:"page" db:"page"`
	Index    int                    `json:"index" db:"position"`
	Metadata map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	// Score is set only on retrieval results.
	Score float64 `json:"score,omitempty" db:"-"`
}

// Clone returns a copy of c that shares no metadata map with the original.
func (c *Chunk) Clone() *Chunk {
	out := *c
	if c.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// SourceFile describes one uploaded file that contributed to an index.
type SourceFile struct {
	Name      string    `json:"name" db:"name"`
	Digest    string    `json:"digest" db:"digest"`
	Records   int       `json:"records" db:"records"`
	IndexedAt time.Time `json:"indexed_at" db:"indexed_at"`
}
