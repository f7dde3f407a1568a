// Package archive stores raw PageSpeed Insights response documents in
// a backend (local filesystem or S3) so runs can be inspected after
// the fact. Archival is strictly best-effort: the API server logs and
// discards any failure here.
package archive

import "context"

// Writer persists one raw response document under a key.
type Writer interface {
	// Put stores data under the given slash-separated key.
	Put(ctx context.Context, key string, data []byte) error
}
