package mlservice

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/sabiscore/predictor/internal/platform/logging"
	"github.com/sabiscore/predictor/internal/platform/resilience"
	"github.com/sabiscore/predictor/internal/usecase"
	"github.com/valyala/bytebufferpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// UpstreamID keys the inference service's breaker in the shared registry.
const UpstreamID = "mlservice"

var errMLTransient = crerr.New("mlservice transient failure")

type ClientConfig struct {
	BaseURL  string
	Timeout  time.Duration
	Logger   *logging.Logger
	Breakers *resilience.Registry
}

// Client calls the external inference service. Any error it returns is
// absorbed by the rule-based fallback path upstream, so it reports failures
// honestly instead of degrading internally.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *logging.Logger
	breakers   *resilience.Registry
}

func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	breakers := cfg.Breakers
	if breakers == nil {
		breakers = resilience.NewRegistry(resilience.DefaultCircuitBreakerConfig())
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		logger:     logger,
		breakers:   breakers,
	}
}

var _ usecase.ModelClient = (*Client)(nil)

func (c *Client) Predict(ctx context.Context, input usecase.ModelInput) (usecase.ModelOutput, error) {
	var out predictionItem
	if err := c.post(ctx, "/predict", toWireInput(input), &out); err != nil {
		return usecase.ModelOutput{}, err
	}
	converted, err := out.toOutput()
	if err != nil {
		return usecase.ModelOutput{}, fmt.Errorf("fixture %d: %w", input.FixtureID, err)
	}
	return converted, nil
}

func (c *Client) PredictBatch(ctx context.Context, inputs []usecase.ModelInput) ([]usecase.ModelOutput, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	request := batchRequest{Inputs: make([]wireInput, 0, len(inputs))}
	for _, input := range inputs {
		request.Inputs = append(request.Inputs, toWireInput(input))
	}

	var response batchResponse
	if err := c.post(ctx, "/predict/batch", request, &response); err != nil {
		return nil, err
	}

	outputs := make([]usecase.ModelOutput, 0, len(response.Predictions))
	for _, item := range response.Predictions {
		converted, err := item.toOutput()
		if err != nil {
			c.logger.WarnContext(ctx, "discarding invalid model output", "fixture_id", item.FixtureID, "error", err)
			continue
		}
		outputs = append(outputs, converted)
	}
	return outputs, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("inference service base URL is not configured: %w", usecase.ErrModelUnavailable)
	}

	breaker := c.breakers.For(UpstreamID)
	if c.breakers.Enabled() {
		if err := breaker.Allow(); err != nil {
			c.logger.WarnContext(ctx, "mlservice circuit breaker rejected request", "path", path, "state", breaker.State())
			return fmt.Errorf("inference service is temporarily unavailable: %w", usecase.ErrModelUnavailable)
		}
	}

	body, err := sonic.Marshal(payload)
	if err != nil {
		return crerr.Wrap(err, "marshal model request")
	}

	requestURL := c.baseURL + path
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(
			attribute.String("mlservice.url", requestURL),
			attribute.String("mlservice.request_preview", previewBody(body)),
		)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(body))
	if err != nil {
		return crerr.Wrap(err, "create model request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		callErr := fmt.Errorf("%w: call %s: %v", errMLTransient, path, err)
		c.recordCircuitResult(callErr)
		return callErr
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		callErr := fmt.Errorf("%w: read model response: %v", errMLTransient, err)
		c.recordCircuitResult(callErr)
		return callErr
	}

	if resp.StatusCode/100 != 2 {
		if resp.StatusCode >= http.StatusInternalServerError {
			callErr := fmt.Errorf("%w: model status=%d body=%s", errMLTransient, resp.StatusCode, previewBody(raw))
			c.recordCircuitResult(callErr)
			return callErr
		}
		callErr := fmt.Errorf("model status=%d body=%s", resp.StatusCode, previewBody(raw))
		c.recordCircuitResult(callErr)
		return callErr
	}

	if err := sonic.Unmarshal(raw, out); err != nil {
		callErr := crerr.Wrap(err, "decode model response")
		c.recordCircuitResult(callErr)
		return callErr
	}

	c.recordCircuitResult(nil)
	return nil
}

// Only transient failures trip the breaker; a 4xx means the request was
// wrong, not that the service is down.
func (c *Client) recordCircuitResult(err error) {
	if !c.breakers.Enabled() {
		return
	}
	breaker := c.breakers.For(UpstreamID)
	if err != nil && stderrors.Is(err, errMLTransient) {
		breaker.RecordFailure()
		return
	}
	breaker.RecordSuccess()
}

func previewBody(body []byte) string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	const max = 2048
	if len(body) > max {
		_, _ = buf.Write(body[:max])
		_, _ = buf.WriteString("...")
	} else {
		_, _ = buf.Write(body)
	}
	return buf.String()
}
