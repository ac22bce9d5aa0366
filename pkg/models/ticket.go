// Package models defines the shared domain types for scopeintel.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Ticket is one support record fed into the analysis pipeline.
// Tickets are immutable inputs; inside a run they are identified by their
// position in the input slice.
type Ticket struct {
	ID        string    `json:"id"`
	System    string    `json:"system"`
	Service   string    `json:"service"`
	Subarea   string    `json:"subarea"`
	Status    string    `json:"status"`
	Requester string    `json:"requester"`
	Title     string    `json:"title"`
	OpenedAt  time.Time `json:"opened_at"`
	Text      string    `json:"text"`
}

// HasOpenedAt reports whether the ticket carries a usable open timestamp.
func (t Ticket) HasOpenedAt() bool {
	return !t.OpenedAt.IsZero()
}

// CacheKey returns the ticket's deterministic embedding-cache key. The
// system prefix keeps equal numeric ids from different systems apart.
func (t Ticket) CacheKey() string {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(t.System+"_"+t.ID)).String()
}

// TuningParams are the clustering thresholds derived from the population
// size. They are computed once per run and returned alongside the result for
// audit and reproducibility.
type TuningParams struct {
	MacroMinSize   int `json:"macro_min_size"`
	MaxClusterSize int `json:"max_cluster_size"`
	MicroMinSize   int `json:"micro_min_size"`
	MacroNeighbors int `json:"n_neighbors_macro"`
}
