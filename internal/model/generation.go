package model

import (
	"strings"
	"time"
)

// Style identifies the artistic style requested for a generation.
type Style string

const (
	StyleRealistic   Style = "realistic"
	StyleAnime       Style = "anime"
	StyleSketch      Style = "sketch"
	StyleWatercolor  Style = "watercolor"
	StyleOilPainting Style = "oil-painting"
	StylePixelArt    Style = "pixel-art"
	Style3DRender    Style = "3d-render"
	StyleCartoon     Style = "cartoon"
)

var styles = map[Style]string{
	StyleRealistic:   "photorealistic, natural lighting, high detail",
	StyleAnime:       "anime illustration, clean line art, cel shading",
	StyleSketch:      "pencil sketch, hand-drawn, cross hatching",
	StyleWatercolor:  "watercolor painting, soft washes, paper texture",
	StyleOilPainting: "oil painting, visible brush strokes, rich colors",
	StylePixelArt:    "pixel art, limited palette, crisp pixels",
	Style3DRender:    "3D render, global illumination, studio lighting",
	StyleCartoon:     "cartoon, bold outlines, flat colors",
}

// Valid reports whether s is a known style.
func (s Style) Valid() bool {
	_, ok := styles[s]
	return ok
}

// Descriptor is the prompt fragment that steers a provider towards the style.
func (s Style) Descriptor() string {
	return styles[s]
}

// Size identifies the output canvas.
type Size string

const (
	SizeSquare    Size = "square"
	SizePortrait  Size = "portrait"
	SizeLandscape Size = "landscape"
)

var sizes = map[Size][2]int{
	SizeSquare:    {1024, 1024},
	SizePortrait:  {1024, 1792},
	SizeLandscape: {1792, 1024},
}

// Valid reports whether s is a known size.
func (s Size) Valid() bool {
	_, ok := sizes[s]
	return ok
}

// Dimensions returns width and height in pixels.
func (s Size) Dimensions() (int, int) {
	d := sizes[s]
	return d[0], d[1]
}

// AspectRatio returns the ratio in W:H form.
func (s Size) AspectRatio() string {
	switch s {
	case SizePortrait:
		return "9:16"
	case SizeLandscape:
		return "16:9"
	default:
		return "1:1"
	}
}

// Format is the requested output file format.
type Format string

const (
	FormatPNG Format = "PNG"
	FormatSVG Format = "SVG"
	FormatJPG Format = "JPG"
)

// ParseFormat normalizes a user supplied format; empty defaults to PNG.
func ParseFormat(s string) (Format, bool) {
	switch f := Format(strings.ToUpper(strings.TrimSpace(s))); f {
	case "":
		return FormatPNG, true
	case FormatPNG, FormatSVG, FormatJPG:
		return f, true
	case "JPEG":
		return FormatJPG, true
	}
	return "", false
}

// FormatFromContentType maps an image MIME type to its format. Parameters after ';' are ignored.
func FormatFromContentType(contentType string) (Format, bool) {
	mediaType, _, _ := strings.Cut(contentType, ";")
	switch strings.ToLower(strings.TrimSpace(mediaType)) {
	case "image/png":
		return FormatPNG, true
	case "image/svg+xml":
		return FormatSVG, true
	case "image/jpeg", "image/jpg":
		return FormatJPG, true
	}
	return "", false
}

// ContentType is the MIME type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatSVG:
		return "image/svg+xml"
	case FormatJPG:
		return "image/jpeg"
	default:
		return "image/png"
	}
}

// Extension is the file extension used for stored objects.
func (f Format) Extension() string {
	switch f {
	case FormatSVG:
		return "svg"
	case FormatJPG:
		return "jpg"
	default:
		return "png"
	}
}

// GenerationRequest is a validated set of generation parameters. It is built
// once by the composer and never modified afterwards.
type GenerationRequest struct {
	Prompt         string
	Style          Style
	Size           Size
	Format         Format
	IdempotencyKey string
}

// GeneratedImage is a successfully generated image owned by a user.
type GeneratedImage struct {
	ID               string    `db:"id" json:"id"`
	UserID           string    `db:"user_id" json:"user_id"`
	URL              string    `db:"url" json:"url"`
	StoragePath      *string   `db:"storage_path" json:"-"`
	Prompt           string    `db:"prompt" json:"prompt"`
	Style            Style     `db:"style" json:"style"`
	Size             Size      `db:"size" json:"size"`
	Format           Format    `db:"format" json:"format"`
	GenerationTimeMs *int64    `db:"generation_time_ms" json:"generation_time_ms,omitempty"`
	IdempotencyKey   *string   `db:"idempotency_key" json:"-"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}
