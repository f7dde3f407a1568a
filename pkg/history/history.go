// Package history derives display views from persisted analysis
// records: filtered and sorted listings, per-domain groupings, and a
// CSV export. All views are recomputed from the full record set on
// every call; nothing here mutates or writes back.
package history

import (
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/ethpandaops/pagespeedoor/pkg/api/store"
)

// SortField identifies the record field a listing is ordered by.
type SortField string

// Sortable fields.
const (
	SortCreatedAt              SortField = "created_at"
	SortFirstContentfulPaint   SortField = "first_contentful_paint"
	SortSpeedIndex             SortField = "speed_index"
	SortLargestContentfulPaint SortField = "largest_contentful_paint"
	SortTotalBlockingTime      SortField = "total_blocking_time"
	SortTimeToInteractive      SortField = "time_to_interactive"
)

// ParseSortField maps a query-parameter value to a SortField.
func ParseSortField(s string) (SortField, bool) {
	switch SortField(s) {
	case SortCreatedAt,
		SortFirstContentfulPaint,
		SortSpeedIndex,
		SortLargestContentfulPaint,
		SortTotalBlockingTime,
		SortTimeToInteractive:
		return SortField(s), true
	}

	return "", false
}

// Direction is the sort direction.
type Direction string

// Sort directions.
const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// ParseDirection maps a query-parameter value to a Direction.
func ParseDirection(s string) (Direction, bool) {
	switch Direction(s) {
	case Ascending, Descending:
		return Direction(s), true
	}

	return "", false
}

// Filter narrows a record collection. Zero values mean "no filter".
type Filter struct {
	// Domain matches by exact hostname parsed from each record's URL.
	// A "www." prefix is NOT normalized away here; records whose URL
	// cannot be parsed are excluded rather than errored.
	Domain string

	// Strategy matches the device-class label exactly.
	Strategy string
}

// Hostname extracts the hostname from a record URL. The second return
// is false for URLs that cannot be parsed or carry no host.
func Hostname(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "", false
	}

	return u.Hostname(), true
}

// Apply returns the records matching the filter, preserving input
// order. An empty filter is the identity transform.
func Apply(records []store.Record, f Filter) []store.Record {
	if f.Domain == "" && f.Strategy == "" {
		return records
	}

	out := make([]store.Record, 0, len(records))

	for _, rec := range records {
		if f.Strategy != "" && rec.Strategy != f.Strategy {
			continue
		}

		if f.Domain != "" {
			host, ok := Hostname(rec.URL)
			if !ok || host != f.Domain {
				continue
			}
		}

		out = append(out, rec)
	}

	return out
}

// Sort orders records in place by the given field and direction.
// Creation time compares as a timestamp, metric fields as floats with
// missing values already normalized to 0. Sorting an already-sorted
// sequence with the same parameters is a no-op.
func Sort(records []store.Record, field SortField, dir Direction) {
	less := func(a, b *store.Record) bool {
		if field == SortCreatedAt {
			return a.CreatedAt.Before(b.CreatedAt)
		}

		return metricValue(a, field) < metricValue(b, field)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if dir == Descending {
			return less(&records[j], &records[i])
		}

		return less(&records[i], &records[j])
	})
}

// metricValue selects the float value for a metric sort field.
func metricValue(rec *store.Record, field SortField) float64 {
	switch field {
	case SortFirstContentfulPaint:
		return rec.FirstContentfulPaint
	case SortSpeedIndex:
		return rec.SpeedIndex
	case SortLargestContentfulPaint:
		return rec.LargestContentfulPaint
	case SortTotalBlockingTime:
		return rec.TotalBlockingTime
	case SortTimeToInteractive:
		return rec.TimeToInteractive
	}

	return 0
}

// WebsiteGroup is the per-domain navigation view: all records for one
// hostname, newest first, plus summary fields.
type WebsiteGroup struct {
	// Domain is the exact hostname the group is keyed by.
	Domain string `json:"domain"`

	// DisplayName is the hostname with a leading "www." stripped.
	DisplayName string `json:"display_name"`

	// URL is the most recent record's URL.
	URL string `json:"url"`

	Count      int            `json:"count"`
	LastTested time.Time      `json:"last_tested"`
	Records    []store.Record `json:"records"`
}

// GroupByDomain partitions records by hostname. Records with
// unparseable URLs are dropped. Groups are ordered by most-recent
// timestamp descending, and each group's records newest first.
// The result depends only on the input set: grouping the same
// collection twice yields identical groups.
func GroupByDomain(records []store.Record) []WebsiteGroup {
	byDomain := make(map[string][]store.Record)

	for _, rec := range records {
		host, ok := Hostname(rec.URL)
		if !ok {
			continue
		}

		byDomain[host] = append(byDomain[host], rec)
	}

	groups := make([]WebsiteGroup, 0, len(byDomain))

	for domain, recs := range byDomain {
		Sort(recs, SortCreatedAt, Descending)

		groups = append(groups, WebsiteGroup{
			Domain:      domain,
			DisplayName: strings.TrimPrefix(domain, "www."),
			URL:         recs[0].URL,
			Count:       len(recs),
			LastTested:  recs[0].CreatedAt,
			Records:     recs,
		})
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].LastTested.Equal(groups[j].LastTested) {
			// Deterministic order for groups tested at the same time.
			return groups[i].Domain < groups[j].Domain
		}

		return groups[i].LastTested.After(groups[j].LastTested)
	})

	return groups
}
