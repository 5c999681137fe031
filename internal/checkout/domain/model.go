package domain

import (
	"context"
	"errors"
)

var (
	ErrMissingIdentity = errors.New("authenticated identity is required")
	ErrUnknownPlan     = errors.New("unknown plan")
)

// CreateSessionRequest is the client payload for opening a checkout.
// UserID is advisory; the authenticated identity always wins.
type CreateSessionRequest struct {
	PlanID   string `json:"plan_id" binding:"required"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	UserID   string `json:"user_id"`
	PlanType string `json:"plan_type"`
	Interval string `json:"interval"`
	PixBonus int64  `json:"pix_bonus"`
}

// CreateSessionResponse carries the processor session and redirect URL.
type CreateSessionResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// Service opens hosted payment sessions and records them as pending
// transactions.
type Service interface {
	CreateSession(ctx context.Context, authUserID string, req CreateSessionRequest) (CreateSessionResponse, error)
}
