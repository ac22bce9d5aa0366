package models

import "time"

// NoiseGroupID is the fixed identity of the scattered/no-pattern entry in the
// final tree. It mirrors the noise label of the clustering stage.
const NoiseGroupID = -1

// Trend kinds.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// Concentration kinds.
const (
	ConcentrationNiche       = "niche"
	ConcentrationGeneralized = "generalized"
	ConcentrationNormal      = "normal"
)

// TimelineBucket is a monthly volume count ("2025-07" style keys).
type TimelineBucket struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// WeekdayBucket is a day-of-week volume count, Mon through Sun.
type WeekdayBucket struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// TrendInsight compares the most recent weekly volume against the previous
// week. Alert is raised only for increasing trends.
type TrendInsight struct {
	Kind      string  `json:"kind"`
	PctChange float64 `json:"pct_change"`
	Alert     bool    `json:"alert"`
	Detail    string  `json:"detail,omitempty"`
}

// ConcentrationInsight measures requester diversity inside a group:
// ratio = distinct requesters / volume.
type ConcentrationInsight struct {
	Kind             string  `json:"kind"`
	Ratio            float64 `json:"ratio"`
	UniqueRequesters int     `json:"unique_requesters"`
}

// Metrics is the descriptive statistics bundle of one group.
type Metrics struct {
	Volume        int                  `json:"volume"`
	TopServices   map[string]int       `json:"top_services"`
	TopSubareas   map[string]int       `json:"top_subareas"`
	TopRequesters map[string]int       `json:"top_requesters"`
	TopStatuses   map[string]int       `json:"top_statuses"`
	Timeline      []TimelineBucket     `json:"timeline"`
	Seasonality   []WeekdayBucket      `json:"seasonality"`
	Trend         TrendInsight         `json:"trend"`
	Concentration ConcentrationInsight `json:"concentration"`
}

// MemberPoint carries the per-ticket visualization coordinates and the
// clusterer's membership confidence, for frontend scatter plots.
type MemberPoint struct {
	ID   string  `json:"id"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Prob float64 `json:"prob"`
}

// Group is one node of the final analysis tree: either a leaf cluster, a
// macro parent with sub-clusters, or the trailing noise entry.
type Group struct {
	ID          int           `json:"cluster_id"`
	Title       string        `json:"title,omitempty"`
	Description string        `json:"description,omitempty"`
	Tags        []string      `json:"tags,omitempty"`
	Rationale   string        `json:"rationale,omitempty"`
	Keywords    []string      `json:"top_keywords,omitempty"`
	Metrics     Metrics       `json:"metrics"`
	Samples     []string      `json:"samples,omitempty"`
	TicketIDs   []string      `json:"ticket_ids"`
	Members     []MemberPoint `json:"members,omitempty"`
	SubClusters []*Group      `json:"sub_clusters,omitempty"`
}

// IsNoise reports whether the group is the scattered entry.
func (g *Group) IsNoise() bool {
	return g.ID == NoiseGroupID
}

// RunMetadata summarizes one executed analysis.
type RunMetadata struct {
	System       string       `json:"system"`
	AnalyzedAt   time.Time    `json:"analyzed_at"`
	PeriodDays   int          `json:"period_days"`
	TotalTickets int          `json:"total_tickets"`
	TotalGroups  int          `json:"total_groups"`
	NoiseRate    float64      `json:"noise_rate"`
	Params       TuningParams `json:"clustering_params"`
}

// AnalysisResult is the persisted output of a pipeline run: metadata plus the
// flattened two-level tree of groups.
type AnalysisResult struct {
	Metadata RunMetadata `json:"metadata"`
	Clusters []*Group    `json:"clusters"`
}
