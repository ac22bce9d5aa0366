package stats

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/scopelabs/scopeintel/pkg/models"
)

const (
	topTableSize    = 5
	maxSamples      = 10
	missingStatus   = "Not Reported"
	trendThreshold  = 30.0
	nicheRatio      = 0.2
	nicheMinVolume  = 5
	generalityRatio = 0.9
)

var weekdayNames = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// Consolidate builds one leaf group per distinct label, noise included, each
// carrying the full metrics bundle of its members. Groups come back ordered
// by label, so noise (if present) is first and ready to be repositioned by
// the tree assembler. coords and probs are optional per-index visualization
// metadata; pass nil when plotting data is not wanted.
func Consolidate(tickets []models.Ticket, labels []int, coords [][]float64, probs []float64) ([]*models.Group, error) {
	if len(tickets) != len(labels) {
		return nil, fmt.Errorf("tickets and labels length mismatch: %d vs %d", len(tickets), len(labels))
	}
	if len(tickets) == 0 {
		return nil, nil
	}

	byLabel := make(map[int][]int)
	for idx, l := range labels {
		byLabel[l] = append(byLabel[l], idx)
	}
	ids := make([]int, 0, len(byLabel))
	for l := range byLabel {
		ids = append(ids, l)
	}
	sort.Ints(ids)

	groups := make([]*models.Group, 0, len(ids))
	for _, label := range ids {
		groups = append(groups, consolidateGroup(label, byLabel[label], tickets, coords, probs))
	}
	return groups, nil
}

func consolidateGroup(label int, members []int, tickets []models.Ticket, coords [][]float64, probs []float64) *models.Group {
	group := make([]models.Ticket, 0, len(members))
	for _, idx := range members {
		group = append(group, tickets[idx])
	}
	total := len(group)

	texts := make([]string, total)
	ticketIDs := make([]string, total)
	for i, t := range group {
		texts[i] = t.Text
		ticketIDs[i] = t.ID
	}
	samples, keywords := SmartSamples(texts, min(maxSamples, total))

	g := &models.Group{
		ID:        label,
		Keywords:  keywords,
		Samples:   samples,
		TicketIDs: ticketIDs,
		Metrics: models.Metrics{
			Volume:        total,
			TopServices:   topCounts(group, func(t models.Ticket) string { return t.Service }),
			TopSubareas:   topCounts(group, func(t models.Ticket) string { return t.Subarea }),
			TopRequesters: topCounts(group, func(t models.Ticket) string { return t.Requester }),
			TopStatuses:   topCounts(group, normalizedStatus),
			Timeline:      timeline(group),
			Seasonality:   seasonality(group),
			Trend:         trend(group),
			Concentration: concentration(group),
		},
	}

	if coords != nil && probs != nil {
		g.Members = make([]models.MemberPoint, 0, total)
		for _, idx := range members {
			g.Members = append(g.Members, models.MemberPoint{
				ID:   tickets[idx].ID,
				X:    coords[idx][0],
				Y:    coords[idx][1],
				Prob: roundTo(probs[idx], 4),
			})
		}
	}
	return g
}

// topCounts tallies one categorical field and keeps the five largest
// entries, ties broken alphabetically. Empty values are skipped so sparse
// fields do not dominate the table.
func topCounts(group []models.Ticket, field func(models.Ticket) string) map[string]int {
	counts := make(map[string]int)
	for _, t := range group {
		if v := field(t); v != "" {
			counts[v]++
		}
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		if counts[keys[a]] == counts[keys[b]] {
			return keys[a] < keys[b]
		}
		return counts[keys[a]] > counts[keys[b]]
	})
	if len(keys) > topTableSize {
		keys = keys[:topTableSize]
	}
	top := make(map[string]int, len(keys))
	for _, k := range keys {
		top[k] = counts[k]
	}
	return top
}

// normalizedStatus title-cases the status and folds blanks into a sentinel,
// so "finalizado", "Finalizado" and "" all land in predictable buckets.
func normalizedStatus(t models.Ticket) string {
	s := strings.TrimSpace(t.Status)
	if s == "" {
		return missingStatus
	}
	return titleCase(s)
}

func titleCase(s string) string {
	var b strings.Builder
	startOfWord := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsSpace(r) {
			startOfWord = true
			b.WriteRune(r)
			continue
		}
		if startOfWord {
			b.WriteRune(unicode.ToUpper(r))
			startOfWord = false
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// timeline buckets the group's volume by calendar month, sorted
// chronologically. Tickets without a timestamp are skipped.
func timeline(group []models.Ticket) []models.TimelineBucket {
	counts := make(map[string]int)
	for _, t := range group {
		if t.HasOpenedAt() {
			counts[t.OpenedAt.Format("2006-01")]++
		}
	}
	months := make([]string, 0, len(counts))
	for m := range counts {
		months = append(months, m)
	}
	sort.Strings(months)

	buckets := make([]models.TimelineBucket, 0, len(months))
	for _, m := range months {
		buckets = append(buckets, models.TimelineBucket{Month: m, Count: counts[m]})
	}
	return buckets
}

// seasonality buckets the group's volume by day of week, Monday first.
// Days with no tickets are omitted.
func seasonality(group []models.Ticket) []models.WeekdayBucket {
	counts := make(map[string]int)
	for _, t := range group {
		if t.HasOpenedAt() {
			counts[weekdayName(t.OpenedAt.Weekday().String())]++
		}
	}
	buckets := make([]models.WeekdayBucket, 0, len(counts))
	for _, day := range weekdayNames {
		if c := counts[day]; c > 0 {
			buckets = append(buckets, models.WeekdayBucket{Day: day, Count: c})
		}
	}
	return buckets
}

func weekdayName(full string) string {
	return full[:3]
}

// trend compares the two most recent ISO-week buckets. A swing past 30% in
// either direction flips the kind; only growth raises the alert flag. A
// jump from an empty week counts as +100%.
func trend(group []models.Ticket) models.TrendInsight {
	insight := models.TrendInsight{Kind: models.TrendStable}

	counts := make(map[string]int)
	for _, t := range group {
		if t.HasOpenedAt() {
			year, week := t.OpenedAt.ISOWeek()
			counts[fmt.Sprintf("%04d-W%02d", year, week)]++
		}
	}
	if len(counts) < 2 {
		return insight
	}
	weeks := make([]string, 0, len(counts))
	for w := range counts {
		weeks = append(weeks, w)
	}
	sort.Strings(weeks)

	prev := counts[weeks[len(weeks)-2]]
	last := counts[weeks[len(weeks)-1]]

	var pct float64
	switch {
	case prev > 0:
		pct = float64(last-prev) / float64(prev) * 100
	case last > 0:
		pct = 100.0
	}

	kind := models.TrendStable
	alert := false
	if pct > trendThreshold {
		kind = models.TrendIncreasing
		alert = true
	} else if pct < -trendThreshold {
		kind = models.TrendDecreasing
	}

	return models.TrendInsight{
		Kind:      kind,
		PctChange: roundTo(pct, 1),
		Alert:     alert,
		Detail:    fmt.Sprintf("Volume %s from %d to %d over the last week.", kind, prev, last),
	}
}

// concentration measures requester diversity: a handful of requesters
// producing many tickets marks a niche problem, near-unique requesters per
// ticket mark a generalized one.
func concentration(group []models.Ticket) models.ConcentrationInsight {
	total := len(group)
	if total == 0 {
		return models.ConcentrationInsight{Kind: models.ConcentrationNormal}
	}
	uniq := make(map[string]bool)
	for _, t := range group {
		uniq[t.Requester] = true
	}
	ratio := float64(len(uniq)) / float64(total)

	kind := models.ConcentrationNormal
	if ratio < nicheRatio && total > nicheMinVolume {
		kind = models.ConcentrationNiche
	} else if ratio > generalityRatio {
		kind = models.ConcentrationGeneralized
	}
	return models.ConcentrationInsight{
		Kind:             kind,
		Ratio:            roundTo(ratio, 2),
		UniqueRequesters: len(uniq),
	}
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
