package aiprovider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/rs/zerolog"
	"go.mau.fi/util/random"

	"github.com/beeper/persona-bridge/pkg/aierrors"
	"github.com/beeper/persona-bridge/pkg/shared/httputil"
)

const (
	DefaultShapesBaseURL = "https://api.shapes.inc/v1"
	DefaultModelPrefix   = "shapesinc/"
	DefaultTemperature   = 0.7
	DefaultMaxTokens     = 1000
)

// ShapesConfig configures the Shapes completion client.
type ShapesConfig struct {
	APIKey      string
	BaseURL     string
	ModelPrefix string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	MaxRetries  int
}

// ShapesProvider implements Completer on top of the OpenAI-compatible Shapes API.
// Every persona is a separate model named <prefix><persona key>.
type ShapesProvider struct {
	client      openai.Client
	log         zerolog.Logger
	modelPrefix string
	temperature float64
	maxTokens   int
}

var _ Completer = (*ShapesProvider)(nil)

// NewShapesProvider creates a Shapes client.
func NewShapesProvider(cfg ShapesConfig, log zerolog.Logger) (*ShapesProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("shapes API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultShapesBaseURL
	}
	if cfg.ModelPrefix == "" {
		cfg.ModelPrefix = DefaultModelPrefix
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(max(cfg.MaxRetries, 0)),
		option.WithMiddleware(makeRequestTraceMiddleware(log)),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &ShapesProvider{
		client:      openai.NewClient(opts...),
		log:         log.With().Str("provider", "shapes").Logger(),
		modelPrefix: cfg.ModelPrefix,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Model returns the backend model name for a persona key.
func (p *ShapesProvider) Model(personaKey string) string {
	return p.modelPrefix + personaKey
}

// Complete sends one chat completion request and returns the reply text.
func (p *ShapesProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if req.PersonaKey == "" {
		return "", fmt.Errorf("persona key is required")
	}
	params := openai.ChatCompletionNewParams{
		Model:       p.Model(req.PersonaKey),
		Messages:    ToOpenAIMessages(req.Messages),
		Temperature: openai.Float(p.temperature),
		MaxTokens:   openai.Int(int64(p.maxTokens)),
	}
	reqOpts := httputil.AppendHeaderOptions(nil, req.Headers)

	resp, err := p.client.Chat.Completions.New(ctx, params, reqOpts...)
	if err != nil {
		p.log.Warn().Err(err).
			Str("model", params.Model).
			Str("error_code", string(aierrors.Classify(err))).
			Msg("Completion request failed")
		return "", err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", aierrors.ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// ToOpenAIMessages converts unified messages to chat completion params.
// Audio is sent as an audio_url part, which the SDK has no typed field for.
func ToOpenAIMessages(messages []UnifiedMessage) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			result = append(result, openai.SystemMessage(msg.Text()))
		case RoleAssistant:
			result = append(result, openai.AssistantMessage(msg.Text()))
		default:
			if !msg.HasMultimodalContent() {
				result = append(result, openai.UserMessage(msg.Text()))
				continue
			}
			result = append(result, openai.UserMessage(toContentParts(msg.Content)))
		}
	}
	return result
}

func toContentParts(parts []ContentPart) []openai.ChatCompletionContentPartUnionParam {
	result := make([]openai.ChatCompletionContentPartUnionParam, 0, len(parts))
	for _, part := range parts {
		switch part.Type {
		case ContentTypeText:
			result = append(result, openai.TextContentPart(part.Text))
		case ContentTypeImage:
			if part.ImageURL == "" {
				continue
			}
			result = append(result, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: part.ImageURL,
			}))
		case ContentTypeAudio:
			if part.AudioURL == "" {
				continue
			}
			result = append(result, param.Override[openai.ChatCompletionContentPartUnionParam](map[string]any{
				"type": "audio_url",
				"audio_url": map[string]any{
					"url": part.AudioURL,
				},
			}))
		}
	}
	return result
}

func newOutboundRequestID() string {
	return "psb_" + random.String(12)
}

func makeRequestTraceMiddleware(log zerolog.Logger) option.Middleware {
	traceLog := log.With().Str("component", "shapes_http").Logger()
	return func(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
		start := time.Now()
		requestID := strings.TrimSpace(req.Header.Get("x-request-id"))
		if requestID == "" {
			requestID = newOutboundRequestID()
			req.Header.Set("x-request-id", requestID)
		}

		traceLog.Debug().
			Str("request_id", requestID).
			Str("request_method", req.Method).
			Str("request_path", req.URL.Path).
			Msg("Dispatching completion HTTP request")

		resp, err := next(req)
		elapsedMs := time.Since(start).Milliseconds()
		if err != nil {
			traceLog.Error().
				Err(err).
				Str("request_id", requestID).
				Int64("duration_ms", elapsedMs).
				Msg("Completion HTTP request failed")
			return nil, err
		}

		event := traceLog.Debug()
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			event = traceLog.Warn()
		}
		event.
			Str("request_id", requestID).
			Int("status_code", resp.StatusCode).
			Int64("duration_ms", elapsedMs).
			Msg("Completion HTTP response")
		return resp, nil
	}
}
