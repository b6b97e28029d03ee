package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/claims-vision/internal/resilience"
	"github.com/sells-group/claims-vision/pkg/anthropic"
)

// invokeTemperature is used for every call. Low temperature keeps the JSON
// replies stable across retries.
const invokeTemperature = 0.2

// Invoker is the pipeline's view of the vision model: one call per stage,
// returning either a schema-conforming result or an error. Mocked in tests.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (*Result, error)
}

// Image is a base64-encoded image attachment for a request.
type Image struct {
	MediaType string
	Data      string
}

// Request describes one model invocation. Decode is the schema contract:
// it receives the cleaned reply text and must either populate the caller's
// typed result and return nil, or return an error, which the adapter treats
// as a schema-validation failure and retries.
type Request struct {
	Stage     string
	System    string
	Prompt    string
	Image     *Image
	MaxTokens int64
	Decode    func(raw string) error
}

// Result reports how an invocation was served. The decoded payload lands in
// the caller's own variables via Request.Decode.
type Result struct {
	Model        string
	Raw          string
	Attempts     int
	FallbackUsed bool
	Usage        anthropic.TokenUsage
	Duration     time.Duration
}

// Config controls the adapter's models, retries and per-call timeout.
type Config struct {
	PrimaryModel  string
	FallbackModel string

	// MaxAttempts bounds attempts against the primary model. The fallback
	// model always gets exactly one attempt. Default: 3.
	MaxAttempts int

	// RequestTimeout bounds each individual network call, distinct from the
	// caller's overall deadline. Default: 60s.
	RequestTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 60 * time.Second
	}
	return c
}

// Adapter implements Invoker against the Anthropic API with bounded retries,
// schema-validated parsing and a single fallover to a secondary model.
type Adapter struct {
	client  anthropic.Client
	cfg     Config
	limiter *rate.Limiter
}

// New creates an Adapter. The limiter enforces the request-rate budget
// toward the external model and may be nil.
func New(client anthropic.Client, cfg Config, limiter *rate.Limiter) *Adapter {
	return &Adapter{
		client:  client,
		cfg:     cfg.withDefaults(),
		limiter: limiter,
	}
}

// Invoke sends the request to the primary model with retries; if the primary
// never yields a schema-conforming reply, the fallback model gets one try.
// On success the returned Result is fully populated and req.Decode has been
// called exactly once with conforming text; on failure the error chain
// contains an InvocationError and req.Decode's effects must be discarded.
func (a *Adapter) Invoke(ctx context.Context, req Request) (*Result, error) {
	if req.Decode == nil {
		return nil, eris.New("llm: request missing decode func")
	}

	start := time.Now()
	result := &Result{Model: a.cfg.PrimaryModel}

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.MaxAttempts = a.cfg.MaxAttempts
	retryCfg.ShouldRetry = shouldRetry
	retryCfg.OnRetry = resilience.RetryLogger("anthropic", req.Stage)

	raw, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (string, error) {
		result.Attempts++
		return a.attempt(ctx, a.cfg.PrimaryModel, req, result)
	})

	if err != nil && ctx.Err() == nil && a.cfg.FallbackModel != "" {
		zap.L().Warn("llm: primary model exhausted, trying fallback",
			zap.String("stage", req.Stage),
			zap.String("primary", a.cfg.PrimaryModel),
			zap.String("fallback", a.cfg.FallbackModel),
			zap.Error(err),
		)
		result.Attempts++
		result.FallbackUsed = true
		result.Model = a.cfg.FallbackModel
		raw, err = a.attempt(ctx, a.cfg.FallbackModel, req, result)
	}

	if err != nil {
		return nil, &InvocationError{
			Stage:    req.Stage,
			Primary:  a.cfg.PrimaryModel,
			Fallback: a.cfg.FallbackModel,
			Err:      err,
		}
	}

	result.Raw = raw
	result.Duration = time.Since(start)

	zap.L().Debug("llm: invocation complete",
		zap.String("stage", req.Stage),
		zap.String("model", result.Model),
		zap.Int("attempts", result.Attempts),
		zap.Bool("fallback", result.FallbackUsed),
		zap.Duration("duration", result.Duration),
	)

	return result, nil
}

// attempt performs one network call and one decode. Usage is accumulated on
// the shared result even for attempts whose decode fails.
func (a *Adapter) attempt(ctx context.Context, model string, req Request, result *Result) (string, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return "", eris.Wrap(err, "llm: rate limit wait")
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.RequestTimeout)
	defer cancel()

	blocks := make([]anthropic.Block, 0, 2)
	if req.Image != nil {
		blocks = append(blocks, anthropic.ImageBlock(req.Image.MediaType, req.Image.Data))
	}
	blocks = append(blocks, anthropic.TextBlock(req.Prompt))

	temp := invokeTemperature
	msgReq := anthropic.MessageRequest{
		Model:       model,
		MaxTokens:   req.MaxTokens,
		Messages:    []anthropic.Message{anthropic.UserMessage(blocks...)},
		Temperature: &temp,
	}
	if req.System != "" {
		// Stage system prompts never change within a process, so they are
		// marked cacheable.
		msgReq.System = []anthropic.SystemBlock{{
			Text:         req.System,
			CacheControl: &anthropic.CacheControl{},
		}}
	}

	resp, err := a.client.CreateMessage(callCtx, msgReq)
	if err != nil {
		return "", classifyTransport(err)
	}

	result.Usage.InputTokens += resp.Usage.InputTokens
	result.Usage.OutputTokens += resp.Usage.OutputTokens
	result.Usage.CacheCreationInputTokens += resp.Usage.CacheCreationInputTokens
	result.Usage.CacheReadInputTokens += resp.Usage.CacheReadInputTokens

	raw := CleanJSON(extractText(resp))
	if decodeErr := req.Decode(raw); decodeErr != nil {
		return "", &SchemaError{Model: model, Raw: raw, Err: decodeErr}
	}

	return raw, nil
}

// shouldRetry treats schema failures as retryable alongside transient
// transport failures: a malformed reply is usually non-deterministic.
func shouldRetry(err error) bool {
	var se *SchemaError
	if errors.As(err, &se) {
		return true
	}
	return resilience.IsTransient(err)
}

// classifyTransport tags retryable API failures so the retry loop can tell
// them apart from permanent errors such as invalid requests.
func classifyTransport(err error) error {
	if code, ok := anthropic.StatusCode(err); ok {
		if resilience.IsTransientHTTPStatus(code) {
			return resilience.NewTransientError(err, code)
		}
		return err
	}
	// No HTTP status: likely a network-level failure.
	if resilience.IsTransient(err) {
		return err
	}
	return eris.Wrap(err, "llm: create message")
}

// extractText concatenates all text content blocks from a message response.
func extractText(resp *anthropic.MessageResponse) string {
	if resp == nil {
		return ""
	}
	var parts []string
	for _, block := range resp.Content {
		if block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// CleanJSON attempts to extract a JSON object from text that may contain
// markdown code fences or other wrapping.
func CleanJSON(text string) string {
	text = strings.TrimSpace(text)

	// Strip markdown code fences.
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	// Find first { and last }.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
