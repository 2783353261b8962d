/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/acronis/go-prooflens/httpclient"
	"github.com/acronis/go-prooflens/log"
	"github.com/acronis/go-prooflens/restapi"
	"github.com/acronis/go-prooflens/retry"
)

// GeminiAPIKeyHeader is the header that carries the credential.
const GeminiAPIKeyHeader = "x-goog-api-key"

const geminiRequestType = "gemini"

const geminiStatusResourceExhausted = "RESOURCE_EXHAUSTED"

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent   `json:"contents"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// GeminiClient is a Generator that calls the generateContent method of the Gemini REST API.
type GeminiClient struct {
	endpoint    string
	generation  *GenerationConfig
	client      *http.Client
	retryPolicy retry.Policy
	logger      log.FieldLogger
}

var _ Generator = (*GeminiClient)(nil)

// NewGeminiClient creates a new GeminiClient.
func NewGeminiClient(cfg *Config, logger log.FieldLogger, opts Opts) (*GeminiClient, error) {
	endpoint, err := url.JoinPath(cfg.BaseURL, "v1beta", "models", cfg.Model+":generateContent")
	if err != nil {
		return nil, fmt.Errorf("build endpoint URL: %w", err)
	}
	client, err := httpclient.NewWithOpts(&cfg.Client, httpclient.Opts{
		UserAgent:         opts.UserAgent,
		RequestType:       geminiRequestType,
		Delegate:          opts.Transport,
		LoggerProvider:    func(context.Context) log.FieldLogger { return logger },
		RequestIDProvider: opts.RequestIDProvider,
		APIKeyProvider:    httpclient.StaticAPIKey(cfg.APIKey),
		APIKeyHeader:      GeminiAPIKeyHeader,
		MetricsCollector:  opts.MetricsCollector,
	})
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}
	var generation *GenerationConfig
	if cfg.Generation != (GenerationConfig{}) {
		generation = &cfg.Generation
	}
	return &GeminiClient{
		endpoint:    endpoint,
		generation:  generation,
		client:      client,
		retryPolicy: cfg.Client.Retries.GetPolicy(),
		logger:      logger,
	}, nil
}

// Generate sends the prompt and returns the text of the first candidate.
// Transient failures are retried according to the configured policy.
func (g *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	var text string
	notify := func(err error, delay time.Duration) {
		g.logger.Warn("transient failure of downstream call, will retry",
			log.DurationMs("backoff_ms", delay), log.Error(err))
	}
	err := retry.DoWithRetry(ctx, g.retryPolicy, IsTransient, notify, func(ctx context.Context) error {
		var genErr error
		text, genErr = g.generateOnce(ctx, prompt)
		return genErr
	})
	return text, err
}

func (g *GeminiClient) generateOnce(ctx context.Context, prompt string) (string, error) {
	req, err := restapi.NewJSONRequest(ctx, http.MethodPost, g.endpoint, geminiRequest{
		Contents:         []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: g.generation,
	})
	if err != nil {
		return "", &FatalError{Err: err}
	}

	var resp geminiResponse
	if err = restapi.DoRequestAndUnmarshalJSON(g.client, req, &resp, g.logger); err != nil {
		return "", classifyGeminiError(ctx, err)
	}

	if reason := resp.PromptFeedback.BlockReason; reason != "" {
		return "", &FatalError{Err: fmt.Errorf("prompt is blocked: %s", reason)}
	}
	if len(resp.Candidates) == 0 {
		return "", &FatalError{Err: errors.New("response has no candidates")}
	}
	candidate := resp.Candidates[0]
	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		sb.WriteString(part.Text)
	}
	if sb.Len() == 0 {
		return "", &FatalError{Err: fmt.Errorf("response has no text, finish reason: %s", candidate.FinishReason)}
	}
	return sb.String(), nil
}

func classifyGeminiError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, httpclient.ErrAPIKeyMissing) {
		return &FatalError{Err: err}
	}

	var cliErr *restapi.ClientError
	if !errors.As(err, &cliErr) {
		// Transport failure, the request may not even reach the service.
		return &TransientError{Err: err}
	}

	var errResp geminiErrorResponse
	if len(cliErr.Body) != 0 && json.Unmarshal(cliErr.Body, &errResp) == nil && errResp.Error.Message != "" {
		cliErr.Message = errResp.Error.Message
	}
	switch {
	case cliErr.StatusCode == http.StatusTooManyRequests || errResp.Error.Status == geminiStatusResourceExhausted:
		return fmt.Errorf("%w: %s", ErrQuotaExceeded, cliErr.Error())
	case cliErr.StatusCode >= http.StatusInternalServerError:
		return &TransientError{Err: cliErr}
	default:
		return &FatalError{Err: cliErr}
	}
}
