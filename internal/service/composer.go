package service

import (
	"errors"
	"strings"
	"unicode/utf8"

	"skechum/internal/api/v1/dto"
	"skechum/internal/model"

	"github.com/go-playground/validator/v10"
)

// Composer turns raw generation input into an immutable model.GenerationRequest.
// It has no side effects and never touches the network.
type Composer struct {
	validate        *validator.Validate
	maxPromptLength int
}

// NewComposer returns a Composer that accepts prompts of at most maxPromptLength runes.
func NewComposer(maxPromptLength int) *Composer {
	v := validator.New()
	_ = v.RegisterValidation("style", func(fl validator.FieldLevel) bool {
		return model.Style(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("size", func(fl validator.FieldLevel) bool {
		return model.Size(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("imageformat", func(fl validator.FieldLevel) bool {
		_, ok := model.ParseFormat(fl.Field().String())
		return ok
	})
	return &Composer{validate: v, maxPromptLength: maxPromptLength}
}

// Compose validates in and builds the request. The prompt is checked first so an empty
// prompt is always reported as ErrEmptyPrompt.
func (c *Composer) Compose(in dto.GenerateRequestDTO) (model.GenerationRequest, error) {
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return model.GenerationRequest{}, ErrEmptyPrompt
	}
	if c.maxPromptLength > 0 && utf8.RuneCountInString(prompt) > c.maxPromptLength {
		return model.GenerationRequest{}, ErrPromptTooLong
	}

	in.Style = strings.TrimSpace(in.Style)
	in.Size = strings.TrimSpace(in.Size)
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	if err := c.validate.Struct(&in); err != nil {
		return model.GenerationRequest{}, fieldError(err)
	}

	format, _ := model.ParseFormat(in.Format)
	return model.GenerationRequest{
		Prompt:         prompt,
		Style:          model.Style(in.Style),
		Size:           model.Size(in.Size),
		Format:         format,
		IdempotencyKey: in.IdempotencyKey,
	}, nil
}

// fieldError maps the first failing field to its sentinel.
func fieldError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	switch verrs[0].Field() {
	case "Style":
		return ErrInvalidStyle
	case "Size":
		return ErrInvalidSize
	case "Format":
		return ErrInvalidFormat
	case "IdempotencyKey":
		return ErrInvalidIdempotencyKey
	}
	return err
}
