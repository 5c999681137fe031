package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/config"
	generationdomain "github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/generation/domain"
	ledgerdomain "github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/ledger/domain"
	obsmetrics "github.com/cesardomingos/Imagenius-v.1.0-sub001/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const creditsPerImage = 1

type Params struct {
	fx.In

	Cfg        config.Config
	Log        *zap.Logger
	Ledger     ledgerdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	baseURL    string
	apiKey     string
	client     *http.Client
	log        *zap.Logger
	ledger     ledgerdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) generationdomain.Service {
	return &Service{
		baseURL:    strings.TrimRight(p.Cfg.ImageAPIBaseURL, "/"),
		apiKey:     p.Cfg.ImageAPIKey,
		client:     &http.Client{Timeout: 60 * time.Second},
		log:        p.Log.Named("generation.service"),
		ledger:     p.Ledger,
		obsMetrics: p.ObsMetrics,
	}
}

// Generate spends one credit, then proxies the prompt to the image API.
// The credit is returned if the upstream call fails.
func (s *Service) Generate(ctx context.Context, userID string, req generationdomain.GenerateRequest) (generationdomain.GenerateResponse, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return generationdomain.GenerateResponse{}, generationdomain.ErrMissingPrompt
	}

	remaining, err := s.ledger.ConsumeCredits(ctx, userID, creditsPerImage)
	if err != nil {
		return generationdomain.GenerateResponse{}, err
	}

	var upstream struct {
		Image string `json:"image"`
	}
	if err := s.callUpstream(ctx, "/v1/images/generate", req, &upstream); err != nil {
		s.obsMetrics.RecordGeneration(ctx, "upstream_error")
		if refundErr := s.ledger.AddCredits(ctx, userID, creditsPerImage, ledgerdomain.GrantSourceRefund); refundErr != nil {
			s.log.Error("credit refund after failed generation failed",
				zap.String("user_id", userID),
				zap.Error(refundErr),
			)
		}
		return generationdomain.GenerateResponse{}, err
	}

	s.obsMetrics.RecordGeneration(ctx, "ok")
	return generationdomain.GenerateResponse{
		Image:            upstream.Image,
		RemainingCredits: remaining,
	}, nil
}

// Suggest proxies prompt refinement without touching the ledger.
func (s *Service) Suggest(ctx context.Context, req generationdomain.SuggestRequest) (generationdomain.SuggestResponse, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return generationdomain.SuggestResponse{}, generationdomain.ErrMissingPrompt
	}

	var upstream struct {
		Suggestions []string `json:"suggestions"`
	}
	if err := s.callUpstream(ctx, "/v1/prompts/suggest", req, &upstream); err != nil {
		return generationdomain.SuggestResponse{}, err
	}
	return generationdomain.SuggestResponse{Suggestions: upstream.Suggestions}, nil
}

func (s *Service) callUpstream(ctx context.Context, path string, payload any, out any) error {
	if s.baseURL == "" {
		return generationdomain.ErrUpstreamUnavailable
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return generationdomain.ErrUpstreamUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		s.log.Warn("image api returned error status",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return generationdomain.ErrUpstreamUnavailable
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
