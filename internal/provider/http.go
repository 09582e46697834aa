package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"skechum/internal/model"

	"github.com/rs/zerolog"
)

type httpRequest struct {
	Prompt string `json:"prompt"`
	Style  string `json:"style"`
	Size   string `json:"size"`
	Format string `json:"format,omitempty"`
}

type httpResponse struct {
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
	Model string `json:"model,omitempty"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// HTTPGenerator calls a JSON image API: POST {prompt, style, size} -> {images: [{url}]}.
type HTTPGenerator struct {
	endpoint string
	apiKey   string
	timeout  time.Duration
	client   *http.Client
	logger   zerolog.Logger
}

// NewHTTPGenerator builds a generator for baseURL. The bearer credential is supplied by the caller.
func NewHTTPGenerator(baseURL, apiKey string, timeout time.Duration, logger zerolog.Logger) (*HTTPGenerator, error) {
	if baseURL == "" {
		return nil, errors.New("provider base URL is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid provider base URL: %w", err)
	}
	return &HTTPGenerator{
		endpoint: strings.TrimRight(baseURL, "/") + "/generate",
		apiKey:   apiKey,
		timeout:  timeout,
		client:   &http.Client{},
		logger:   logger.With().Str("provider", "http").Logger(),
	}, nil
}

func (g *HTTPGenerator) Generate(ctx context.Context, req model.GenerationRequest) (*Output, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	w, h := req.Size.Dimensions()
	body, err := json.Marshal(httpRequest{
		Prompt: req.Prompt,
		Style:  string(req.Style),
		Size:   fmt.Sprintf("%dx%d", w, h),
		Format: strings.ToLower(string(req.Format)),
	})
	if err != nil {
		return nil, &Error{Kind: KindUpstream, Err: fmt.Errorf("encode request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindUpstream, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	start := time.Now()
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, classify(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, classify(err)
	}
	g.logger.Debug().Int("status", resp.StatusCode).Dur("duration", time.Since(start)).Msg("Provider responded")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		kind := KindUpstream
		if resp.StatusCode == http.StatusGatewayTimeout || resp.StatusCode == http.StatusRequestTimeout {
			kind = KindTimeout
		}
		return nil, &Error{Kind: kind, StatusCode: resp.StatusCode, Err: errors.New(snippet(raw))}
	}

	var parsed httpResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &Error{Kind: KindInvalidResponse, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return parsed.validate()
}

// validate checks the decoded payload against the expected schema.
func (r *httpResponse) validate() (*Output, error) {
	if r.Error != nil && r.Error.Message != "" {
		return nil, &Error{Kind: KindUpstream, Err: errors.New(r.Error.Message)}
	}
	if len(r.Images) == 0 {
		return nil, &Error{Kind: KindInvalidResponse, Err: errors.New("response contains no images")}
	}
	u, err := url.Parse(r.Images[0].URL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return nil, &Error{Kind: KindInvalidResponse, Err: fmt.Errorf("invalid image url %q", r.Images[0].URL)}
	}
	return &Output{URL: u.String(), Model: r.Model}, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200]
	}
	if s == "" {
		return "empty response body"
	}
	return s
}
