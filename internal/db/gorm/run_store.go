package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	gormlib "gorm.io/gorm"

	"github.com/scopelabs/scopeintel/pkg/models"
)

// ErrRunNotFound is returned when a requested analysis run does not exist.
var ErrRunNotFound = errors.New("analysis run not found")

// SaveRun persists one completed analysis and returns its id.
func (s *Store) SaveRun(ctx context.Context, result *models.AnalysisResult) (uint, error) {
	encoded, err := json.Marshal(result)
	if err != nil {
		return 0, fmt.Errorf("encode analysis result: %w", err)
	}
	run := AnalysisRun{
		System:       result.Metadata.System,
		AnalyzedAt:   result.Metadata.AnalyzedAt.Unix(),
		PeriodDays:   result.Metadata.PeriodDays,
		TotalTickets: result.Metadata.TotalTickets,
		TotalGroups:  result.Metadata.TotalGroups,
		NoiseRate:    result.Metadata.NoiseRate,
		ResultJSON:   string(encoded),
	}
	if err := s.DB.WithContext(ctx).Create(&run).Error; err != nil {
		return 0, fmt.Errorf("save run: %w", err)
	}
	return run.ID, nil
}

// ListRuns returns the most recent runs, newest first. system filters when
// non-empty.
func (s *Store) ListRuns(ctx context.Context, system string, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	q := s.DB.WithContext(ctx).Model(&AnalysisRun{})
	if system != "" {
		q = q.Where("system = ?", system)
	}

	var rows []AnalysisRun
	err := q.Order("analyzed_at_epoch DESC, id DESC").
		Limit(limit).
		Omit("result_json").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	summaries := make([]RunSummary, 0, len(rows))
	for _, r := range rows {
		summaries = append(summaries, RunSummary{
			ID:           r.ID,
			System:       r.System,
			AnalyzedAt:   time.Unix(r.AnalyzedAt, 0).UTC(),
			PeriodDays:   r.PeriodDays,
			TotalTickets: r.TotalTickets,
			TotalGroups:  r.TotalGroups,
			NoiseRate:    r.NoiseRate,
		})
	}
	return summaries, nil
}

// GetRun loads one persisted analysis with its full result tree.
func (s *Store) GetRun(ctx context.Context, id uint) (*models.AnalysisResult, error) {
	var run AnalysisRun
	err := s.DB.WithContext(ctx).First(&run, id).Error
	if errors.Is(err, gormlib.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %d: %w", id, err)
	}

	var result models.AnalysisResult
	if err := json.Unmarshal([]byte(run.ResultJSON), &result); err != nil {
		return nil, fmt.Errorf("decode run %d: %w", id, err)
	}
	return &result, nil
}
