package core

import (
	"sort"

	"go.uber.org/zap"

	"github.com/docchat/docchat/internal/utils"
	"github.com/docchat/docchat/internal/vectorstore"
)

type ScoredRecord struct {
	Record vectorstore.Record
	Score  float32
}

// RankRecords scores every candidate against queryEmbedding by cosine
// similarity and returns them in descending score order. The sort is stable:
// candidates with equal scores keep their relative input order, so identical
// inputs always rank identically. Records that cannot be scored (missing or
// mismatched embedding) are skipped with a warning.
func RankRecords(queryEmbedding []float32, candidates []vectorstore.Record, logger *zap.Logger) []ScoredRecord {
	scored := make([]ScoredRecord, 0, len(candidates))
	for _, rec := range candidates {
		if len(rec.Embedding) == 0 {
			logger.Warn("skipping record with missing embedding", zap.String("record_id", rec.ID))
			continue
		}
		similarity, err := utils.CosineSimilarity(queryEmbedding, rec.Embedding)
		if err != nil {
			logger.Warn("failed to score record", zap.String("record_id", rec.ID), zap.Error(err))
			continue
		}
		scored = append(scored, ScoredRecord{Record: rec, Score: similarity})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}
