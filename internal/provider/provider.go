// Package provider is the boundary to external image-generation services.
// Every backend returns either a validated Output or an *Error whose Kind tells
// the caller whether the upstream failed, timed out or answered with an
// unusable payload.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"

	"skechum/internal/model"
)

// Output is a validated provider result. Exactly one of URL or Data is set.
type Output struct {
	URL      string
	Data     []byte
	MimeType string
	Model    string
}

// Generator produces one image for a request.
type Generator interface {
	Generate(ctx context.Context, req model.GenerationRequest) (*Output, error)
}

type Kind string

const (
	KindUpstream        Kind = "upstream"
	KindTimeout         Kind = "timeout"
	KindInvalidResponse Kind = "invalid_response"
)

// Error is the failure variant of a provider call.
type Error struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a provider timeout.
func IsTimeout(err error) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind == KindTimeout
	}
	return false
}

// classify wraps a transport-level error, recognising deadline and network timeouts.
func classify(err error) *Error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindUpstream, Err: err}
}

// Prompt renders the text sent to providers that take a single prompt string.
func Prompt(req model.GenerationRequest) string {
	p := req.Prompt
	if d := req.Style.Descriptor(); d != "" {
		p += ". Style: " + d
	}
	w, h := req.Size.Dimensions()
	if w > 0 {
		p += fmt.Sprintf(". Aspect ratio %s (%dx%d)", req.Size.AspectRatio(), w, h)
	}
	if req.Format == model.FormatSVG {
		p += ". Flat vector artwork suitable for SVG tracing"
	}
	return p
}
