package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"skechum/internal/model"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// contentGenerator is the subset of *genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiGenerator produces images with Gemini image models. Results are raw
// bytes, so callers must store them before exposing a URL.
type GeminiGenerator struct {
	models  contentGenerator
	model   string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewGeminiGenerator creates a Gemini API client authenticated with apiKey.
func NewGeminiGenerator(ctx context.Context, apiKey, modelName string, timeout time.Duration, logger zerolog.Logger) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return newGeminiGenerator(client.Models, modelName, timeout, logger), nil
}

func newGeminiGenerator(models contentGenerator, modelName string, timeout time.Duration, logger zerolog.Logger) *GeminiGenerator {
	return &GeminiGenerator{
		models:  models,
		model:   modelName,
		timeout: timeout,
		logger:  logger.With().Str("provider", "gemini").Str("model", modelName).Logger(),
	}
}

func (g *GeminiGenerator) Generate(ctx context.Context, req model.GenerationRequest) (*Output, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(Prompt(req)), &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	})
	if err != nil {
		return nil, classify(err)
	}
	out, err := parseGeminiResponse(resp)
	if err != nil {
		return nil, err
	}
	out.Model = g.model
	g.logger.Debug().Int("bytes", len(out.Data)).Str("mime_type", out.MimeType).Msg("Gemini image received")
	return out, nil
}

// parseGeminiResponse takes the first inline image of the first candidate.
func parseGeminiResponse(resp *genai.GenerateContentResponse) (*Output, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, &Error{Kind: KindInvalidResponse, Err: errors.New("no candidates in response")}
	}
	candidate := resp.Candidates[0]
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return &Output{Data: part.InlineData.Data, MimeType: part.InlineData.MIMEType}, nil
			}
		}
	}
	// Safety blocks and similar stops come back without image parts.
	switch fr := candidate.FinishReason; fr {
	case "", genai.FinishReasonUnspecified, genai.FinishReasonStop:
	default:
		return nil, &Error{Kind: KindUpstream, Err: fmt.Errorf("generation stopped: %s", fr)}
	}
	return nil, &Error{Kind: KindInvalidResponse, Err: errors.New("response contains no image data")}
}
