package sportsdata

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/sabiscore/predictor/internal/domain/ingestion"
	"github.com/sabiscore/predictor/internal/platform/cache"
	idgen "github.com/sabiscore/predictor/internal/platform/id"
	"github.com/sabiscore/predictor/internal/platform/logging"
	"github.com/sabiscore/predictor/internal/platform/resilience"
	"github.com/sabiscore/predictor/internal/usecase"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// UpstreamID keys this provider's breaker inside the shared registry.
const UpstreamID = "sportsdata"

var apiTokenParamRegex = regexp.MustCompile(`api_token=[^&\s"']+`)

var (
	errTransient   = crerr.New("sportsdata transient failure")
	errRateLimited = crerr.New("sportsdata rate limited")
)

type ClientConfig struct {
	HTTPClient   *http.Client
	BaseURL      string
	Token        string
	Timeout      time.Duration
	MaxRetries   int
	BackoffBase  time.Duration
	TTLLive      time.Duration
	TTLVolatile  time.Duration
	TTLReference time.Duration
	TTLOverrides map[string]time.Duration
	Logger       *logging.Logger
	Breakers     *resilience.Registry
	Cache        *cache.Store
	Synth        *Synthesizer
	Events       ingestion.Repository
	IDs          idgen.Generator
}

// Client wraps the sports-data provider with the degradation chain
// fresh-cache, breaker-gated network, stale-cache, synthesizer. Callers
// always receive a usable payload; hard failures stop at this boundary.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	token       string
	maxRetries  int
	backoffBase time.Duration

	ttlLive      time.Duration
	ttlVolatile  time.Duration
	ttlReference time.Duration
	ttlOverrides map[string]time.Duration

	logger   *logging.Logger
	breakers *resilience.Registry
	cache    *cache.Store
	synth    *Synthesizer
	events   ingestion.Repository
	ids      idgen.Generator
	flight   resilience.SingleFlight
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = timeout
	}

	backoffBase := cfg.BackoffBase
	if backoffBase <= 0 {
		backoffBase = 500 * time.Millisecond
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	ttlLive := cfg.TTLLive
	if ttlLive <= 0 {
		ttlLive = 30 * time.Second
	}
	ttlVolatile := cfg.TTLVolatile
	if ttlVolatile <= 0 {
		ttlVolatile = 30 * time.Minute
	}
	ttlReference := cfg.TTLReference
	if ttlReference <= 0 {
		ttlReference = 24 * time.Hour
	}

	breakers := cfg.Breakers
	if breakers == nil {
		breakers = resilience.NewRegistry(resilience.DefaultCircuitBreakerConfig())
	}
	store := cfg.Cache
	if store == nil {
		store = cache.NewStore(time.Minute)
	}
	synth := cfg.Synth
	if synth == nil {
		synth = NewSynthesizer()
	}
	ids := cfg.IDs
	if ids == nil {
		ids = idgen.NewRandomGenerator()
	}

	return &Client{
		httpClient:   httpClient,
		baseURL:      strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		token:        strings.TrimSpace(cfg.Token),
		maxRetries:   maxRetries,
		backoffBase:  backoffBase,
		ttlLive:      ttlLive,
		ttlVolatile:  ttlVolatile,
		ttlReference: ttlReference,
		ttlOverrides: cfg.TTLOverrides,
		logger:       logger,
		breakers:     breakers,
		cache:        store,
		synth:        synth,
		events:       cfg.Events,
		ids:          ids,
	}
}

// Request resolves one endpoint through the provider chain. The returned
// meta reports which tier served the payload. Only context cancellation and
// a definitive upstream 404 surface as errors; every other failure degrades
// to the next tier.
func (c *Client) Request(ctx context.Context, endpoint string, params map[string]string) ([]byte, usecase.ProviderMeta, error) {
	key := requestKey(endpoint, params)

	if payload, freshness := c.cache.Get(ctx, key); freshness == cache.Fresh {
		return payload.([]byte), usecase.ProviderMeta{Source: usecase.PayloadSourceCache}, nil
	}

	breaker := c.breakers.For(UpstreamID)
	var netErr error
	if !c.breakers.Enabled() || breaker.Allow() == nil {
		payload, err := c.fetchNetwork(ctx, key, endpoint, params)
		if err == nil {
			return payload, usecase.ProviderMeta{Source: usecase.PayloadSourceNetwork}, nil
		}
		if ctx.Err() != nil {
			return nil, usecase.ProviderMeta{}, ctx.Err()
		}
		if stderrors.Is(err, usecase.ErrNotFound) {
			// A 404 is a definitive answer from a reachable upstream, not
			// an outage. Stale or synthesized data must not mask it.
			return nil, usecase.ProviderMeta{Source: usecase.PayloadSourceNetwork}, err
		}
		netErr = err
	} else {
		netErr = resilience.ErrCircuitOpen
		c.logger.WarnContext(ctx, "sportsdata circuit breaker rejected request",
			"endpoint", endpoint,
			"state", breaker.State(),
		)
	}

	if payload, freshness := c.cache.Get(ctx, key); freshness == cache.Stale {
		meta := usecase.ProviderMeta{Source: usecase.PayloadSourceStaleCache, UsedFallback: true}
		c.recordFallback(ctx, endpoint, meta, netErr)
		return payload.([]byte), meta, nil
	}

	meta := usecase.ProviderMeta{Source: usecase.PayloadSourceSynthetic, UsedFallback: true}
	c.recordFallback(ctx, endpoint, meta, netErr)
	return c.synth.Payload(endpoint, params), meta, nil
}

// fetchNetwork performs the guarded HTTP call, deduplicated per request
// signature, and writes successful payloads through to the cache.
func (c *Client) fetchNetwork(ctx context.Context, key, endpoint string, params map[string]string) ([]byte, error) {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	if c.token != "" {
		values.Set("api_token", c.token)
	}

	fullURL := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	if encoded := values.Encode(); encoded != "" {
		fullURL += "?" + encoded
	}

	breaker := c.breakers.For(UpstreamID)
	out, err, _ := c.flight.Do(key, func() (any, error) {
		raw, reqErr := c.executeRequest(ctx, fullURL)
		if c.breakers.Enabled() {
			if reqErr != nil && isBreakerFailure(reqErr) {
				breaker.RecordFailure()
			} else {
				breaker.RecordSuccess()
			}
		}
		if reqErr != nil {
			return nil, reqErr
		}
		c.cache.Put(ctx, key, raw, c.ttlFor(endpoint))
		return raw, nil
	})
	if err != nil {
		return nil, err
	}

	raw, ok := out.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected response payload type %T", out)
	}
	return raw, nil
}

// executeRequest retries transient failures with exponential backoff.
// Rate-limit and plan-restriction responses are never retried.
func (c *Client) executeRequest(ctx context.Context, fullURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: send request: %s", errTransient, sanitizeSensitiveText(err.Error(), c.token))
		} else {
			raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 6<<20))
			_ = resp.Body.Close()
			switch {
			case readErr != nil:
				lastErr = fmt.Errorf("%w: read response body: %v", errTransient, readErr)
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				return raw, nil
			case isRateLimitResponse(resp.StatusCode, raw):
				return nil, fmt.Errorf("%w: provider status=%d body=%s", errRateLimited, resp.StatusCode, abbreviateBody(raw))
			case resp.StatusCode == http.StatusNotFound:
				return nil, fmt.Errorf("provider status=404 body=%s: %w", abbreviateBody(raw), usecase.ErrNotFound)
			case resp.StatusCode >= http.StatusInternalServerError:
				lastErr = fmt.Errorf("%w: provider status=%d body=%s", errTransient, resp.StatusCode, abbreviateBody(raw))
			default:
				return nil, fmt.Errorf("provider status=%d body=%s", resp.StatusCode, abbreviateBody(raw))
			}
		}

		if attempt == c.maxRetries {
			break
		}
		backoff := c.backoffBase << uint(attempt)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("provider request failed")
	}
	c.logger.WarnContext(ctx, "sportsdata request failed", "url", redactAPIURL(fullURL), "error", lastErr)
	return nil, lastErr
}

func (c *Client) ttlFor(endpoint string) time.Duration {
	trimmed := strings.Trim(strings.TrimSpace(endpoint), "/")
	for pattern, ttl := range c.ttlOverrides {
		if strings.Contains(trimmed, pattern) {
			return ttl
		}
	}

	switch {
	case strings.HasSuffix(trimmed, "/odds"), strings.Contains(trimmed, "live"):
		return c.ttlLive
	case strings.HasPrefix(trimmed, "h2h/"):
		return c.ttlReference
	case strings.HasPrefix(trimmed, "teams/") &&
		!strings.HasSuffix(trimmed, "/results") &&
		!strings.HasSuffix(trimmed, "/injuries"):
		return c.ttlReference
	default:
		return c.ttlVolatile
	}
}

func (c *Client) recordFallback(ctx context.Context, endpoint string, meta usecase.ProviderMeta, cause error) {
	if c.events == nil {
		return
	}

	eventID, err := c.ids.NewID()
	if err != nil {
		eventID = fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}

	event := ingestion.Event{
		ID:           eventID,
		Source:       UpstreamID,
		Scope:        endpoint,
		Status:       ingestion.StatusDegraded,
		StartedAt:    time.Now().UTC(),
		UsedFallback: true,
		Metadata: map[string]string{
			"payload_source": meta.Source,
		},
	}
	if cause != nil {
		event.ErrorMessage = sanitizeSensitiveText(cause.Error(), c.token)
	}

	if err := c.events.Append(ctx, event); err != nil {
		c.logger.WarnContext(ctx, "append fallback event failed", "endpoint", endpoint, "error", err)
	}
}

func isBreakerFailure(err error) bool {
	return stderrors.Is(err, errTransient) || stderrors.Is(err, errRateLimited)
}

// IsRateLimited reports whether the chain degraded because of provider
// quota enforcement.
func IsRateLimited(err error) bool {
	return stderrors.Is(err, errRateLimited)
}

func isRateLimitResponse(statusCode int, body []byte) bool {
	if statusCode == http.StatusTooManyRequests || statusCode == http.StatusPaymentRequired {
		return true
	}
	if statusCode == http.StatusForbidden {
		return strings.Contains(strings.ToLower(string(body)), "plan")
	}
	return false
}

func requestKey(endpoint string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(strings.Trim(strings.TrimSpace(endpoint), "/"))
	for i, key := range keys {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(params[key])
	}
	return b.String()
}

func sanitizeSensitiveText(value, token string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	if token != "" {
		value = strings.ReplaceAll(value, token, "REDACTED")
	}
	value = apiTokenParamRegex.ReplaceAllString(value, "api_token=REDACTED")
	return value
}

func redactAPIURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	query := parsed.Query()
	if query.Has("api_token") {
		query.Set("api_token", "REDACTED")
		parsed.RawQuery = query.Encode()
	}
	return parsed.String()
}

func abbreviateBody(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) <= 240 {
		return text
	}
	return text[:240] + "..."
}
