package dto

import "skechum/internal/presenter"

// ImageListResponseDTO is a page of the caller's gallery, newest first.
type ImageListResponseDTO struct {
	Images []presenter.Card `json:"images"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}
