package dto

// GenerateRequestDTO is the body of POST /generate.
type GenerateRequestDTO struct {
	Prompt         string `json:"prompt"`
	Style          string `json:"style" validate:"required,style"`
	Size           string `json:"size" validate:"required,size"`
	Format         string `json:"format" validate:"imageformat"`
	IdempotencyKey string `json:"idempotency_key,omitempty" validate:"omitempty,max=128,printascii"`
}
