package pagespeed

import "github.com/tidwall/gjson"

// Sentinel is substituted for any metric field absent from the
// upstream document.
const Sentinel = "N/A"

// CruxMetrics are the Chrome UX Report field-data categories
// (FAST/AVERAGE/SLOW) for the tested URL.
type CruxMetrics struct {
	FirstContentfulPaint string `json:"First Contentful Paint"`
	FirstInputDelay      string `json:"First Input Delay"`
}

// LighthouseMetrics are the per-run Lighthouse audit display values,
// human-readable strings like "2.3 s" or "150 ms".
type LighthouseMetrics struct {
	FirstContentfulPaint   string `json:"First Contentful Paint"`
	SpeedIndex             string `json:"Speed Index"`
	LargestContentfulPaint string `json:"Largest Contentful Paint"`
	TotalBlockingTime      string `json:"Total Blocking Time"`
	TimeToInteractive      string `json:"Time To Interactive"`
}

// Dot-paths of the tracked fields inside the PSI v5 document.
const (
	pathID = "id"

	pathCruxFCP = "loadingExperience.metrics.FIRST_CONTENTFUL_PAINT_MS.category"
	pathCruxFID = "loadingExperience.metrics.FIRST_INPUT_DELAY_MS.category"

	pathLHFCP = "lighthouseResult.audits.first-contentful-paint.displayValue"
	pathLHSI  = "lighthouseResult.audits.speed-index.displayValue"
	pathLHLCP = "lighthouseResult.audits.largest-contentful-paint.displayValue"
	pathLHTBT = "lighthouseResult.audits.total-blocking-time.displayValue"
	pathLHTTI = "lighthouseResult.audits.interactive.displayValue"
)

// ExtractResult projects the tracked fields out of a raw PSI document.
// Any path with a missing segment yields the sentinel; extraction
// itself never fails, whatever the document's shape.
func ExtractResult(doc []byte) *Result {
	return &Result{
		ID: gjson.GetBytes(doc, pathID).String(),
		Crux: CruxMetrics{
			FirstContentfulPaint: field(doc, pathCruxFCP),
			FirstInputDelay:      field(doc, pathCruxFID),
		},
		Lighthouse: LighthouseMetrics{
			FirstContentfulPaint:   field(doc, pathLHFCP),
			SpeedIndex:             field(doc, pathLHSI),
			LargestContentfulPaint: field(doc, pathLHLCP),
			TotalBlockingTime:      field(doc, pathLHTBT),
			TimeToInteractive:      field(doc, pathLHTTI),
		},
		Raw: doc,
	}
}

// field looks up a dot-path in the document, substituting the sentinel
// when the path does not resolve to a value.
func field(doc []byte, path string) string {
	r := gjson.GetBytes(doc, path)
	if !r.Exists() {
		return Sentinel
	}

	return r.String()
}
