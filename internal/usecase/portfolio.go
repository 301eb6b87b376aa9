package usecase

import (
	"context"
	"fmt"
	"sync"

	"FinSight/internal/domain/models"
	domrepo "FinSight/internal/domain/repository"
	"FinSight/internal/services/ml"
	applogger "FinSight/pkg/logger"
	"FinSight/pkg/util"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const portfolioConcurrency = 4

// PortfolioUseCase splits a cash budget across the bullish symbols of a list in
// proportion to their recommendation scores.
type PortfolioUseCase struct {
	recs      *RecommendUseCase
	publisher domrepo.RecommendationPublisher
	l         *applogger.Logger
}

// NewPortfolioUseCase creates the use case. publisher may be nil.
func NewPortfolioUseCase(recs *RecommendUseCase, publisher domrepo.RecommendationPublisher) *PortfolioUseCase {
	return &PortfolioUseCase{recs: recs, publisher: publisher}
}

func (uc *PortfolioUseCase) SetLogger(l *applogger.Logger) { uc.l = l }

// Allocate recommends every symbol, then gives each BUY or STRONG_BUY symbol
// budget × score / Σscore and buys whole shares at the current price. Symbols
// that cannot be evaluated are reported in Skipped.
func (uc *PortfolioUseCase) Allocate(ctx context.Context, symbols []string, budget float64) (*models.PortfolioAllocation, error) {
	symbols = util.FormatSymbols(symbols)
	if len(symbols) == 0 {
		return nil, fmt.Errorf("symbols required")
	}
	if budget <= 0 {
		return nil, fmt.Errorf("budget must be positive")
	}

	reports, skipped := uc.evaluate(ctx, symbols)
	alloc := allocate(decimal.NewFromFloat(budget), symbols, reports)
	if len(skipped) > 0 {
		alloc.Skipped = skipped
	}
	uc.publishFresh(ctx, reports)
	return alloc, nil
}

func (uc *PortfolioUseCase) evaluate(ctx context.Context, symbols []string) (map[string]*models.RecommendationReport, map[string]string) {
	var (
		mu      sync.Mutex
		reports = make(map[string]*models.RecommendationReport, len(symbols))
		skipped = make(map[string]string)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(portfolioConcurrency)
	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			rep, hit := uc.recs.cached(gctx, symbol, false)
			if !hit {
				var err error
				rep, err = uc.recs.Evaluate(gctx, symbol)
				if err != nil {
					uc.l.Warn("portfolio symbol skipped", applogger.String("symbol", symbol), applogger.Error(err))
					mu.Lock()
					skipped[symbol] = err.Error()
					mu.Unlock()
					return nil
				}
				uc.recs.store(gctx, rep)
			}
			mu.Lock()
			reports[symbol] = rep
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return reports, skipped
}

// publishFresh emits the recommendations computed for this request in one batch.
func (uc *PortfolioUseCase) publishFresh(ctx context.Context, reports map[string]*models.RecommendationReport) {
	if uc.publisher == nil {
		return
	}
	recs := make([]*models.Recommendation, 0, len(reports))
	for _, rep := range reports {
		if !rep.Cached {
			recs = append(recs, rep.Recommendation)
		}
	}
	if len(recs) == 0 {
		return
	}
	if err := uc.publisher.PublishAll(ctx, recs); err != nil {
		uc.l.Warn("portfolio publish failed", applogger.Int("count", len(recs)), applogger.Error(err))
	}
}

// allocate is the pure allocation step; positions follow the order of symbols.
func allocate(budget decimal.Decimal, symbols []string, reports map[string]*models.RecommendationReport) *models.PortfolioAllocation {
	total := decimal.Zero
	for _, rep := range reports {
		if rep.Action.Bullish() && rep.Score > 0 {
			total = total.Add(decimal.NewFromFloat(rep.Score))
		}
	}

	out := &models.PortfolioAllocation{
		Budget:    budget,
		Invested:  decimal.Zero,
		Positions: make([]models.Position, 0, len(reports)),
	}
	for _, symbol := range symbols {
		rep, ok := reports[symbol]
		if !ok {
			continue
		}
		price := decimal.NewFromFloat(rep.CurrentPrice).Round(2)
		pos := models.Position{
			Symbol:   symbol,
			Action:   rep.Action,
			Score:    rep.Score,
			Eligible: rep.Action.Bullish() && rep.Score > 0,
			Price:    price,
			Amount:   decimal.Zero,
			Cost:     decimal.Zero,
		}
		if pos.Eligible && total.IsPositive() {
			score := decimal.NewFromFloat(rep.Score)
			pos.Weight = ml.Round(score.Div(total).InexactFloat64(), 4)
			amount := budget.Mul(score).Div(total)
			pos.Amount = amount.Round(2)
			if price.IsPositive() {
				pos.Shares = amount.Div(price).Floor().IntPart()
				pos.Cost = price.Mul(decimal.NewFromInt(pos.Shares))
			}
			out.Invested = out.Invested.Add(pos.Cost)
		}
		out.Positions = append(out.Positions, pos)
	}
	out.Remaining = budget.Sub(out.Invested)
	return out
}
