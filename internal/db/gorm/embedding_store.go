package gorm

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"gorm.io/gorm/clause"
)

// GetEmbeddings loads cached vectors for the given keys. Missing keys are
// simply absent from the returned map.
func (s *Store) GetEmbeddings(ctx context.Context, keys []string) (map[string][]float64, error) {
	if len(keys) == 0 {
		return map[string][]float64{}, nil
	}
	var rows []EmbeddingRow
	err := s.DB.WithContext(ctx).
		Where("key IN ?", keys).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("get embeddings: %w", err)
	}

	out := make(map[string][]float64, len(rows))
	for _, r := range rows {
		var vec []float64
		if err := json.Unmarshal([]byte(r.Vector), &vec); err != nil {
			return nil, fmt.Errorf("decode embedding %s: %w", r.Key, err)
		}
		out[r.Key] = vec
	}
	return out, nil
}

// PutEmbeddings caches computed vectors, replacing stale entries for the
// same key.
func (s *Store) PutEmbeddings(ctx context.Context, model string, vectors map[string][]float64) error {
	if len(vectors) == 0 {
		return nil
	}
	rows := make([]EmbeddingRow, 0, len(vectors))
	for key, vec := range vectors {
		encoded, err := json.Marshal(vec)
		if err != nil {
			return fmt.Errorf("encode embedding %s: %w", key, err)
		}
		rows = append(rows, EmbeddingRow{Key: key, Model: model, Vector: string(encoded)})
	}
	err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			UpdateAll: true,
		}).
		CreateInBatches(rows, 500).Error
	if err != nil {
		return fmt.Errorf("put embeddings: %w", err)
	}
	return nil
}
