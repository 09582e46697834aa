package presenter

import (
	"time"

	"skechum/internal/model"
)

// Card is the gallery/status view of a generated image.
type Card struct {
	ID               string    `json:"id"`
	URL              string    `json:"url"`
	Prompt           string    `json:"prompt"`
	Style            string    `json:"style,omitempty"`
	Size             string    `json:"size,omitempty"`
	Format           string    `json:"format,omitempty"`
	GenerationTimeMs *int64    `json:"generation_time_ms,omitempty"`
	Status           Status    `json:"status"`
	Timestamp        time.Time `json:"timestamp"`
}

// NewCard projects a stored image. Stored images are always completed.
func NewCard(img *model.GeneratedImage) Card {
	return Card{
		ID:               img.ID,
		URL:              img.URL,
		Prompt:           img.Prompt,
		Style:            string(img.Style),
		Size:             string(img.Size),
		Format:           string(img.Format),
		GenerationTimeMs: img.GenerationTimeMs,
		Status:           StatusCompleted,
		Timestamp:        img.CreatedAt,
	}
}

// Cards projects a page of images, preserving order.
func Cards(imgs []model.GeneratedImage) []Card {
	out := make([]Card, 0, len(imgs))
	for i := range imgs {
		out = append(out, NewCard(&imgs[i]))
	}
	return out
}
