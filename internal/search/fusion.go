package search

import (
	"sort"

	"github.com/hyperjump/smartdoc/internal/models"
)

// FusedResult holds a chunk and its fused keyword/semantic scores.
type FusedResult struct {
	Chunk         *models.Chunk
	Score         float64
	KeywordScore  float64
	SemanticScore float64
}

// NormalizeKeywordScores maps chunk ID to BM25 score divided by the maximum, in [0,1].
func NormalizeKeywordScores(results []*models.Chunk) map[string]float64 {
	normalized := make(map[string]float64, len(results))
	if len(results) == 0 {
		return normalized
	}
	maxScore := results[0].Score
	for _, r := range results {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	for _, r := range results {
		if maxScore > 0 {
			normalized[r.ID] = r.Score / maxScore
		} else {
			normalized[r.ID] = 0
		}
	}
	return normalized
}

// NormalizeSemanticScores maps chunk ID to cosine score clamped to [0,1].
func NormalizeSemanticScores(results []*models.Chunk) map[string]float64 {
	normalized := make(map[string]float64, len(results))
	for _, r := range results {
		s := r.Score
		if s < 0 {
			s = 0
		}
		normalized[r.ID] = s
	}
	return normalized
}

// Fuse merges keyword and semantic candidates with weights and returns them
// sorted by fused score. Ties keep semantic rank, then keyword rank.
func Fuse(keywordResults, semanticResults []*models.Chunk, keywordWeight, semanticWeight float64) []*FusedResult {
	keywordScores := NormalizeKeywordScores(keywordResults)
	semanticScores := NormalizeSemanticScores(semanticResults)

	byID := make(map[string]*FusedResult)
	var order []*FusedResult
	add := func(ch *models.Chunk) *FusedResult {
		if r, ok := byID[ch.ID]; ok {
			return r
		}
		r := &FusedResult{Chunk: ch}
		byID[ch.ID] = r
		order = append(order, r)
		return r
	}
	for _, ch := range semanticResults {
		add(ch).SemanticScore = semanticScores[ch.ID]
	}
	for _, ch := range keywordResults {
		add(ch).KeywordScore = keywordScores[ch.ID]
	}
	for _, r := range order {
		r.Score = (keywordWeight * r.KeywordScore) + (semanticWeight * r.SemanticScore)
	}
	sort.SliceStable(order, func(i, j int) bool { return order[i].Score > order[j].Score })
	return order
}
