package gorm

import (
	"time"

	"github.com/scopelabs/scopeintel/pkg/models"
)

// TicketRow is the persisted form of one imported support ticket.
type TicketRow struct {
	ID        string `gorm:"primaryKey;column:id"`
	System    string `gorm:"column:system;index:idx_tickets_system_opened"`
	Service   string `gorm:"column:service"`
	Subarea   string `gorm:"column:subarea"`
	Status    string `gorm:"column:status"`
	Requester string `gorm:"column:requester"`
	Title     string `gorm:"column:title"`
	OpenedAt  int64  `gorm:"column:opened_at_epoch;index:idx_tickets_system_opened"`
	Text      string `gorm:"column:text"`
	CreatedAt int64  `gorm:"column:created_at_epoch;autoCreateTime:milli"`
}

// TableName overrides the table name.
func (TicketRow) TableName() string {
	return "tickets"
}

// ToModel converts the row to the domain ticket.
func (r TicketRow) ToModel() models.Ticket {
	t := models.Ticket{
		ID:        r.ID,
		System:    r.System,
		Service:   r.Service,
		Subarea:   r.Subarea,
		Status:    r.Status,
		Requester: r.Requester,
		Title:     r.Title,
		Text:      r.Text,
	}
	if r.OpenedAt > 0 {
		t.OpenedAt = time.Unix(r.OpenedAt, 0).UTC()
	}
	return t
}

// NewTicketRow converts a domain ticket into its persisted form.
func NewTicketRow(t models.Ticket) TicketRow {
	row := TicketRow{
		ID:        t.ID,
		System:    t.System,
		Service:   t.Service,
		Subarea:   t.Subarea,
		Status:    t.Status,
		Requester: t.Requester,
		Title:     t.Title,
		Text:      t.Text,
	}
	if t.HasOpenedAt() {
		row.OpenedAt = t.OpenedAt.Unix()
	}
	return row
}

// EmbeddingRow caches one computed embedding vector, keyed by the ticket's
// deterministic cache key so repeated runs skip the embedding service.
type EmbeddingRow struct {
	Key       string `gorm:"primaryKey;column:key"`
	Model     string `gorm:"column:model"`
	Vector    string `gorm:"column:vector"` // JSON-encoded []float64
	CreatedAt int64  `gorm:"column:created_at_epoch;autoCreateTime:milli"`
}

// TableName overrides the table name.
func (EmbeddingRow) TableName() string {
	return "embeddings"
}

// AnalysisRun is one persisted pipeline execution with its full result tree.
type AnalysisRun struct {
	ID           uint    `gorm:"primaryKey;autoIncrement"`
	System       string  `gorm:"column:system;index"`
	AnalyzedAt   int64   `gorm:"column:analyzed_at_epoch;index"`
	PeriodDays   int     `gorm:"column:period_days"`
	TotalTickets int     `gorm:"column:total_tickets"`
	TotalGroups  int     `gorm:"column:total_groups"`
	NoiseRate    float64 `gorm:"column:noise_rate"`
	ResultJSON   string  `gorm:"column:result_json"`
}

// TableName overrides the table name.
func (AnalysisRun) TableName() string {
	return "analysis_runs"
}

// RunSummary is the listing view of a persisted run, without the tree.
type RunSummary struct {
	ID           uint      `json:"id"`
	System       string    `json:"system"`
	AnalyzedAt   time.Time `json:"analyzed_at"`
	PeriodDays   int       `json:"period_days"`
	TotalTickets int       `json:"total_tickets"`
	TotalGroups  int       `json:"total_groups"`
	NoiseRate    float64   `json:"noise_rate"`
}
