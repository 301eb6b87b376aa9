package analytics

import (
	"context"
	"fmt"
	"strings"

	"FinSight/internal/domain/models"
	domsvc "FinSight/internal/domain/service"
	"FinSight/pkg/config"
)

// HTTPExplainer asks an external narrative service to explain a recommendation.
type HTTPExplainer struct {
	base     *HTTPServiceBase
	attempts int
}

func NewHTTPExplainer(cfg *config.Config) *HTTPExplainer {
	return &HTTPExplainer{
		base:     NewHTTPServiceBase(strings.TrimRight(cfg.Explainer.URL, "/"), cfg.Explainer.Timeout),
		attempts: cfg.Explainer.Attempts,
	}
}

type explainScore struct {
	Score   float64  `json:"score"`
	Signals []string `json:"signals"`
}

type explainRequest struct {
	Symbol        string                  `json:"symbol"`
	Action        string                  `json:"action"`
	Score         float64                 `json:"score"`
	Confidence    string                  `json:"confidence"`
	Summary       string                  `json:"summary"`
	Price         float64                 `json:"price"`
	ChangePercent float64                 `json:"change_percent"`
	Categories    map[string]explainScore `json:"categories"`
}

type explainResponse struct {
	Explanation string `json:"explanation"`
}

func (e *HTTPExplainer) Explain(ctx context.Context, rec *models.Recommendation, live models.LivePrice) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("explain: nil recommendation")
	}
	req := explainRequest{
		Symbol:        rec.Symbol,
		Action:        rec.Action.Label(),
		Score:         rec.Score,
		Confidence:    string(rec.Confidence),
		Summary:       rec.Summary,
		Price:         live.Price,
		ChangePercent: live.ChangePercent,
		Categories:    make(map[string]explainScore, 4),
	}
	for _, s := range []models.SignalScore{rec.Technical, rec.Forecast, rec.Trend, rec.Volume} {
		req.Categories[s.Category] = explainScore{Score: s.Score, Signals: append([]string(nil), s.Signals...)}
	}

	var resp explainResponse
	if err := e.base.PostJSONWithRetry(ctx, "/explain", req, &resp, e.attempts); err != nil {
		return "", fmt.Errorf("explain %s: %w", rec.Symbol, err)
	}
	text := strings.TrimSpace(resp.Explanation)
	if text == "" {
		return "", fmt.Errorf("explain %s: empty explanation", rec.Symbol)
	}
	return text, nil
}

// NoopExplainer is used when no explanation service is configured.
type NoopExplainer struct{}

func (NoopExplainer) Explain(context.Context, *models.Recommendation, models.LivePrice) (string, error) {
	return "", nil
}

var (
	_ domsvc.Explainer = (*HTTPExplainer)(nil)
	_ domsvc.Explainer = NoopExplainer{}
)
