package ballchasing

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	replayservice "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/application"
	replaytypes "github.com/samfeast/RLI-RLIS-v2/app/modules/replays/domain/types"
	"github.com/samfeast/RLI-RLIS-v2/internal/observability/attr"
	replaymetrics "github.com/samfeast/RLI-RLIS-v2/internal/observability/metrics/replays"
)

const (
	DefaultBaseURL = "https://ballchasing.com/api"
	DefaultTimeout = 30 * time.Second

	// The archive only accepts whole minutes in its upload bounds.
	filterTimeFormat = "2006-01-02T15:04:00Z"

	endpointFilter = "filter"
	endpointGet    = "get"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ClientConfig configures the archive client.
type ClientConfig struct {
	HTTPClient *http.Client
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	Logger     *slog.Logger
	Metrics    replaymetrics.ReplayMetrics
}

// Client talks to the ballchasing.com replay API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *slog.Logger
	metrics    replaymetrics.ReplayMetrics
}

var _ replayservice.ReplaySource = (*Client)(nil)

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = replaymetrics.NewNoop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		logger:     logger.With(attr.String("component", "ballchasing_client")),
		metrics:    metrics,
	}
}

type filterResponse struct {
	Count int            `json:"count"`
	List  []filterReplay `json:"list"`
}

type filterReplay struct {
	ID     string     `json:"id"`
	Blue   filterTeam `json:"blue"`
	Orange filterTeam `json:"orange"`
}

type filterTeam struct {
	Players []jsoniter.RawMessage `json:"players"`
}

// Filter lists private-match replays uploaded inside window that include every
// given player. Lobbies whose size differs from the number of players asked
// for are dropped from the result.
func (c *Client) Filter(ctx context.Context, window replaytypes.Window, players []replaytypes.PlatformKey) (replaytypes.FilterResult, error) {
	query := url.Values{}
	query.Set("playlist", "private")
	for _, p := range players {
		query.Add("player-id", p.String())
	}
	query.Set("created-after", window.Start.UTC().Format(filterTimeFormat))
	query.Set("created-before", window.End.UTC().Format(filterTimeFormat))

	body, status, err := c.do(ctx, endpointFilter, "/replays", query)
	if err != nil {
		return replaytypes.FilterResult{}, err
	}
	if status == http.StatusNotFound {
		return replaytypes.FilterResult{}, &replaytypes.APIError{StatusCode: status, Endpoint: "/replays", Body: string(body)}
	}

	var resp filterResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return replaytypes.FilterResult{}, fmt.Errorf("%w: decode filter response: %w", replaytypes.ErrTransport, err)
	}

	result := replaytypes.FilterResult{List: []replaytypes.CandidateSummary{}}
	for _, r := range resp.List {
		// Compared with the queried identities, not the mode's lobby size.
		if len(r.Blue.Players)+len(r.Orange.Players) != len(players) {
			continue
		}
		result.List = append(result.List, replaytypes.CandidateSummary{ID: r.ID})
	}
	result.Count = len(result.List)

	if dropped := len(resp.List) - result.Count; dropped > 0 {
		c.logger.DebugContext(ctx, "Dropped replays with a different lobby size",
			attr.Int("dropped", dropped),
			attr.Int("players", len(players)),
		)
	}
	return result, nil
}

// Get fetches one replay. A replay the archive does not know comes back as the
// empty sentinel rather than an error.
func (c *Client) Get(ctx context.Context, id string) (replaytypes.Replay, error) {
	path := "/replays/" + url.PathEscape(id)
	body, status, err := c.do(ctx, endpointGet, path, nil)
	if err != nil {
		return replaytypes.Replay{}, err
	}
	if status == http.StatusNotFound {
		return replaytypes.Replay{ID: id, Raw: []byte("{}")}, nil
	}
	return replaytypes.Replay{ID: id, Raw: body}, nil
}

// do performs one GET. It returns the body for 200 and 404; 429 and every other
// status become typed errors.
func (c *Client) do(ctx context.Context, endpoint, path string, query url.Values) ([]byte, int, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordAPIRequest(ctx, endpoint, 0, time.Since(start))
		return nil, 0, fmt.Errorf("%w: %s: %w", replaytypes.ErrTransport, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	c.metrics.RecordAPIRequest(ctx, endpoint, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read %s: %w", replaytypes.ErrTransport, path, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK, resp.StatusCode == http.StatusNotFound:
		c.logger.DebugContext(ctx, "Archive call returned",
			attr.String("endpoint", endpoint),
			attr.Int("status", resp.StatusCode),
		)
		return body, resp.StatusCode, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		c.logger.WarnContext(ctx, "Archive rate limit hit, slow down requests",
			attr.String("endpoint", endpoint),
			attr.Duration("retry_after", retryAfter),
		)
		return nil, resp.StatusCode, &replaytypes.RateLimitedError{RetryAfter: retryAfter, Body: body}
	default:
		c.logger.ErrorContext(ctx, "Archive call failed",
			attr.String("endpoint", endpoint),
			attr.Int("status", resp.StatusCode),
		)
		return nil, resp.StatusCode, &replaytypes.APIError{StatusCode: resp.StatusCode, Endpoint: path, Body: string(body)}
	}
}

// parseRetryAfter reads either form of the Retry-After header. Unknown values
// give zero.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}
