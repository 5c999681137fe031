package domain

import (
	"context"
	"errors"
)

var (
	ErrMissingPrompt       = errors.New("prompt is required")
	ErrUpstreamUnavailable = errors.New("image service unavailable")
)

// GenerateRequest asks the upstream model for one image.
type GenerateRequest struct {
	Prompt         string `json:"prompt" binding:"required"`
	ReferenceImage string `json:"reference_image"`
	Style          string `json:"style"`
}

// GenerateResponse returns the rendered image and the caller's balance
// after the credit spend.
type GenerateResponse struct {
	Image            string `json:"image"`
	RemainingCredits int64  `json:"remaining_credits"`
}

// SuggestRequest asks for prompt refinement ideas.
type SuggestRequest struct {
	Prompt string `json:"prompt" binding:"required"`
}

// SuggestResponse lists suggested prompt variations.
type SuggestResponse struct {
	Suggestions []string `json:"suggestions"`
}

// Service proxies generation calls to the external image API. Generate
// spends one credit per image; Suggest is free.
type Service interface {
	Generate(ctx context.Context, userID string, req GenerateRequest) (GenerateResponse, error)
	Suggest(ctx context.Context, req SuggestRequest) (SuggestResponse, error)
}
