package history

import (
	"strconv"
	"strings"
	"time"

	"github.com/ethpandaops/pagespeedoor/pkg/api/store"
)

// csvHeader is the fixed nine-column export header.
var csvHeader = []string{
	"id",
	"created_at",
	"url",
	"strategy",
	"first_contentful_paint",
	"speed_index",
	"largest_contentful_paint",
	"total_blocking_time",
	"time_to_interactive",
}

// ExportCSV renders records as delimited text with every field
// quoted. Second-denominated metrics are formatted to three decimals,
// the millisecond-denominated total_blocking_time to zero. This is a
// pure formatting function; callers decide the record order by
// filtering/sorting beforehand.
func ExportCSV(records []store.Record) string {
	var b strings.Builder

	writeRow(&b, csvHeader)

	for i := range records {
		rec := &records[i]

		writeRow(&b, []string{
			strconv.FormatUint(uint64(rec.ID), 10),
			rec.CreatedAt.UTC().Format(time.RFC3339),
			rec.URL,
			rec.Strategy,
			strconv.FormatFloat(rec.FirstContentfulPaint, 'f', 3, 64),
			strconv.FormatFloat(rec.SpeedIndex, 'f', 3, 64),
			strconv.FormatFloat(rec.LargestContentfulPaint, 'f', 3, 64),
			strconv.FormatFloat(rec.TotalBlockingTime, 'f', 0, 64),
			strconv.FormatFloat(rec.TimeToInteractive, 'f', 3, 64),
		})
	}

	return b.String()
}

// writeRow appends one quoted, comma-separated row.
func writeRow(b *strings.Builder, fields []string) {
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}

		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(f, `"`, `""`))
		b.WriteByte('"')
	}

	b.WriteByte('\n')
}
