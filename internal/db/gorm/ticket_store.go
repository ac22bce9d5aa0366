package gorm

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"github.com/scopelabs/scopeintel/pkg/models"
)

// UpsertTickets inserts the tickets, replacing rows that share an id.
// Re-importing an export file is therefore idempotent.
func (s *Store) UpsertTickets(ctx context.Context, tickets []models.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	rows := make([]TicketRow, 0, len(tickets))
	for _, t := range tickets {
		rows = append(rows, NewTicketRow(t))
	}
	err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		CreateInBatches(rows, 500).Error
	if err != nil {
		return fmt.Errorf("upsert tickets: %w", err)
	}
	return nil
}

// ListTickets returns one system's tickets opened within the last sinceDays
// days, oldest first. sinceDays <= 0 lifts the time filter.
func (s *Store) ListTickets(ctx context.Context, system string, sinceDays int) ([]models.Ticket, error) {
	q := s.DB.WithContext(ctx).Model(&TicketRow{}).Where("system = ?", system)
	if sinceDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -sinceDays).Unix()
		q = q.Where("opened_at_epoch >= ?", cutoff)
	}

	var rows []TicketRow
	if err := q.Order("opened_at_epoch ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	tickets := make([]models.Ticket, 0, len(rows))
	for _, r := range rows {
		tickets = append(tickets, r.ToModel())
	}
	return tickets, nil
}

// CountTickets returns the number of stored tickets for a system.
func (s *Store) CountTickets(ctx context.Context, system string) (int64, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&TicketRow{}).
		Where("system = ?", system).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count tickets: %w", err)
	}
	return count, nil
}

// ListSystems returns the distinct systems present in the ticket table.
func (s *Store) ListSystems(ctx context.Context) ([]string, error) {
	var systems []string
	err := s.DB.WithContext(ctx).Model(&TicketRow{}).
		Distinct("system").
		Order("system ASC").
		Pluck("system", &systems).Error
	if err != nil {
		return nil, fmt.Errorf("list systems: %w", err)
	}
	return systems, nil
}
