// Package report assembles the flat leaf groups produced by the aggregator
// into the final two-level analysis tree.
package report

import (
	"sort"
	"strconv"
	"strings"

	"github.com/scopelabs/scopeintel/internal/stats"
	"github.com/scopelabs/scopeintel/pkg/models"
)

// parentIDBase offsets parent ids away from the leaf id space so a macro
// group's synthetic node can never collide with a leaf cluster id.
const parentIDBase = 10000

// Fixed texts for the scattered entry. These are written by hand so the
// naming service never spends tokens on noise.
const (
	noiseTitle       = "Other / Scattered"
	noiseDescription = "Tickets that showed no clear grouping pattern with the rest."
	noiseRationale   = "This group holds heterogeneous incidents that never reached the minimum density to form a cohesive cluster. They do not reflect a single systemic problem."
)

var noiseTags = []string{"Varied", "No Pattern"}

// BuildTree merges the leaf groups into the final top-level list. Macro
// groups with two or more leaves get a synthetic parent whose statistics are
// summed from its children; a macro group with a single leaf is promoted
// directly, so no one-child wrappers ever appear. The scattered entry, when
// present, closes the list.
func BuildTree(leaves []*models.Group, hierarchy map[string][]int) []*models.Group {
	byID := make(map[int]*models.Group, len(leaves))
	var noise *models.Group
	for _, g := range leaves {
		if g.IsNoise() {
			noise = g
			continue
		}
		byID[g.ID] = g
	}

	keys := make([]string, 0, len(hierarchy))
	for k := range hierarchy {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		return macroNum(keys[a]) < macroNum(keys[b])
	})

	tree := make([]*models.Group, 0, len(keys)+1)
	for _, key := range keys {
		children := make([]*models.Group, 0, len(hierarchy[key]))
		for _, id := range hierarchy[key] {
			if child, ok := byID[id]; ok {
				children = append(children, child)
			}
		}
		switch len(children) {
		case 0:
			continue
		case 1:
			tree = append(tree, children[0])
		default:
			tree = append(tree, mergeChildren(macroNum(key), children))
		}
	}

	if noise != nil {
		noise.Title = noiseTitle
		noise.Description = noiseDescription
		noise.Tags = noiseTags
		noise.Rationale = noiseRationale
		tree = append(tree, noise)
	}
	return tree
}

// mergeChildren synthesizes the parent node of one macro group. Every
// statistic is the sum of the children's bundles, never recomputed from raw
// tickets, so parent totals always equal the sum of their children.
func mergeChildren(macroID int, children []*models.Group) *models.Group {
	parent := &models.Group{
		ID:          parentIDBase + macroID,
		SubClusters: children,
	}

	services := make(map[string]int)
	subareas := make(map[string]int)
	requesters := make(map[string]int)
	statuses := make(map[string]int)
	timeline := make(map[string]int)
	seasonality := make(map[string]int)
	keywords := make(map[string]int)

	for _, child := range children {
		m := child.Metrics
		parent.Metrics.Volume += m.Volume
		parent.TicketIDs = append(parent.TicketIDs, child.TicketIDs...)

		addCounts(services, m.TopServices)
		addCounts(subareas, m.TopSubareas)
		addCounts(requesters, m.TopRequesters)
		addCounts(statuses, m.TopStatuses)
		for _, b := range m.Timeline {
			timeline[b.Month] += b.Count
		}
		for _, b := range m.Seasonality {
			seasonality[b.Day] += b.Count
		}
		for _, kw := range child.Keywords {
			keywords[kw]++
		}
	}

	parent.Metrics.TopServices = topFive(services)
	parent.Metrics.TopSubareas = topFive(subareas)
	parent.Metrics.TopRequesters = topFive(requesters)
	parent.Metrics.TopStatuses = topFive(statuses)
	parent.Metrics.Timeline = sortedTimeline(timeline)
	parent.Metrics.Seasonality = sortedSeasonality(seasonality)
	parent.Keywords = stats.TopKeywords(keywords, 15)
	return parent
}

func addCounts(dst, src map[string]int) {
	for k, v := range src {
		dst[k] += v
	}
}

func topFive(counts map[string]int) map[string]int {
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
	if len(keys) > 5 {
		keys = keys[:5]
	}
	top := make(map[string]int, len(keys))
	for _, k := range keys {
		top[k] = counts[k]
	}
	return top
}

func sortedTimeline(counts map[string]int) []models.TimelineBucket {
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

var weekdayOrder = map[string]int{
	"Mon": 0, "Tue": 1, "Wed": 2, "Thu": 3, "Fri": 4, "Sat": 5, "Sun": 6,
}

func sortedSeasonality(counts map[string]int) []models.WeekdayBucket {
	days := make([]string, 0, len(counts))
	for d := range counts {
		days = append(days, d)
	}
	sort.Slice(days, func(a, b int) bool {
		return weekdayOrder[days[a]] < weekdayOrder[days[b]]
	})
	buckets := make([]models.WeekdayBucket, 0, len(days))
	for _, d := range days {
		buckets = append(buckets, models.WeekdayBucket{Day: d, Count: counts[d]})
	}
	return buckets
}

func macroNum(key string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(key, "macro_"))
	if err != nil {
		return -1
	}
	return n
}
