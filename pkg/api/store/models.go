package store

import "time"

// Record is a single persisted PageSpeed analysis. Records are
// immutable once written: the store exposes no update or delete path,
// and both the identifier and the creation timestamp are assigned by
// the database, never by callers.
type Record struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	// Subject of the analysis.
	URL      string `gorm:"not null;index" json:"url"`
	Strategy string `gorm:"not null;index" json:"strategy"`

	// Lighthouse measurements. Seconds, except TotalBlockingTime
	// which Lighthouse reports in milliseconds. A value of 0 means
	// the upstream display string was absent or unparseable.
	FirstContentfulPaint   float64 `json:"first_contentful_paint"`
	SpeedIndex             float64 `json:"speed_index"`
	LargestContentfulPaint float64 `json:"largest_contentful_paint"`
	TotalBlockingTime      float64 `json:"total_blocking_time"`
	TimeToInteractive      float64 `json:"time_to_interactive"`
}
