package pagespeed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/ethpandaops/pagespeedoor/pkg/config"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// Strategy values accepted by the PSI API.
const (
	StrategyDesktop = "desktop"
	StrategyMobile  = "mobile"
)

// ValidStrategy reports whether s is a known device strategy.
func ValidStrategy(s string) bool {
	return s == StrategyDesktop || s == StrategyMobile
}

// Result holds the projected metrics for a single PSI run together
// with the verbatim upstream document.
type Result struct {
	// ID is the canonical URL reported by the API, falling back to the
	// requested URL when the document does not carry one.
	ID         string
	Crux       CruxMetrics
	Lighthouse LighthouseMetrics

	// Raw is the unmodified upstream response body, kept around so it
	// can be archived for later inspection.
	Raw []byte
}

// Client runs PageSpeed Insights analyses.
type Client interface {
	// Analyze fetches a PSI report for the given URL and strategy.
	// It fails only on transport errors or a non-2xx upstream status;
	// missing metric fields degrade to the "N/A" sentinel instead.
	Analyze(ctx context.Context, targetURL, strategy string) (*Result, error)
}

// Compile-time interface check.
var _ Client = (*client)(nil)

type client struct {
	log      logrus.FieldLogger
	endpoint string
	apiKey   string
	http     *http.Client
}

// NewClient creates a PSI API client from the given configuration.
func NewClient(log logrus.FieldLogger, cfg *config.PageSpeedConfig) Client {
	return &client{
		log:      log.WithField("component", "pagespeed"),
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		http: &http.Client{
			Timeout: cfg.ParsedTimeout(),
		},
	}
}

// Analyze performs a single GET against the PSI endpoint.
func (c *client) Analyze(
	ctx context.Context, targetURL, strategy string,
) (*Result, error) {
	q := url.Values{}
	q.Set("url", targetURL)
	q.Set("strategy", strategy)

	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}

	reqURL := c.endpoint + "?" + q.Encode()

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, reqURL, nil,
	)
	if err != nil {
		return nil, fmt.Errorf("building pagespeed request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching pagespeed report: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)

		return nil, fmt.Errorf(
			"pagespeed api returned status %d", resp.StatusCode,
		)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading pagespeed response: %w", err)
	}

	// A body that is not JSON at all is a failed fetch. Missing fields
	// inside a valid document are handled by extraction instead.
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("parsing pagespeed response: invalid json")
	}

	result := ExtractResult(body)
	if result.ID == "" {
		result.ID = targetURL
	}

	c.log.WithField("url", targetURL).
		WithField("strategy", strategy).
		Debug("Fetched PageSpeed report")

	return result, nil
}
