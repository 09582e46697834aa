package service

import "errors"

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrProviderFailed      = errors.New("image provider failed")
	ErrProviderTimeout     = errors.New("image provider timed out")

	ErrEmptyPrompt           = errors.New("prompt must not be empty")
	ErrPromptTooLong         = errors.New("prompt is too long")
	ErrInvalidStyle          = errors.New("invalid style")
	ErrInvalidSize           = errors.New("invalid size")
	ErrInvalidFormat         = errors.New("invalid format")
	ErrInvalidIdempotencyKey = errors.New("invalid idempotency key")

	ErrImageNotFound     = errors.New("image not found")
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrInvalidCreditPack = errors.New("invalid credit pack")
	ErrInvalidWebhook    = errors.New("invalid webhook")
)
