package usecase

import (
	"context"
	"fmt"
	"time"

	"FinSight/internal/domain/models"
	domrepo "FinSight/internal/domain/repository"
	domsvc "FinSight/internal/domain/service"
	applogger "FinSight/pkg/logger"
	"FinSight/pkg/util"

	"github.com/dustin/go-humanize"
)

// staleAfter is how far the newest stored bar may lag the requested window end
// before the feed is consulted. It covers a long weekend.
const staleAfter = 4 * 24 * time.Hour

// HistoryUseCase serves daily bars, indicator frames and live quotes. Stored bars
// are preferred; the REST feed fills gaps and its results are written back.
type HistoryUseCase struct {
	feed   domrepo.PriceFeed
	store  domrepo.BarStore
	stream domrepo.QuoteStream
	calc   domsvc.IndicatorCalculator
	l      *applogger.Logger
	now    func() time.Time
}

// NewHistoryUseCase creates the use case. store and stream may be nil.
func NewHistoryUseCase(feed domrepo.PriceFeed, store domrepo.BarStore, stream domrepo.QuoteStream, calc domsvc.IndicatorCalculator) *HistoryUseCase {
	return &HistoryUseCase{feed: feed, store: store, stream: stream, calc: calc, now: time.Now}
}

func (uc *HistoryUseCase) SetLogger(l *applogger.Logger) { uc.l = l }

// Bars returns the daily bars of the last days calendar days, oldest first.
func (uc *HistoryUseCase) Bars(ctx context.Context, symbol string, days int) ([]models.PriceBar, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	from, to := util.HistoryWindow(uc.now(), days)

	if uc.store != nil {
		stored, err := uc.store.GetBars(ctx, symbol, from, to)
		if err != nil {
			uc.l.Warn("bar store read failed", applogger.String("symbol", symbol), applogger.Error(err))
		} else if fresh(stored, to) {
			return stored, nil
		}
	}

	start := time.Now()
	bars, err := uc.feed.DailyBars(ctx, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("fetch bars %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("fetch bars %s: %w", symbol, models.ErrNoData)
	}
	uc.l.Debug("bars fetched from feed",
		applogger.String("symbol", symbol),
		applogger.String("rows", humanize.Comma(int64(len(bars)))),
		applogger.Duration("duration_ms", time.Since(start)))

	if uc.store != nil {
		if err := uc.store.StoreBars(ctx, symbol, bars); err != nil {
			uc.l.Warn("bar store write-back failed", applogger.String("symbol", symbol), applogger.Error(err))
		}
	}
	return bars, nil
}

// Frame returns the indicator frame over the last days calendar days.
func (uc *HistoryUseCase) Frame(ctx context.Context, symbol string, days int) (*models.IndicatorFrame, error) {
	bars, err := uc.Bars(ctx, symbol, days)
	if err != nil {
		return nil, err
	}
	frame, err := uc.calc.Compute(symbol, bars)
	if err != nil {
		return nil, fmt.Errorf("compute indicators %s: %w", symbol, err)
	}
	return frame, nil
}

// Quote returns the latest streamed quote when the stream has one, else asks the
// feed.
func (uc *HistoryUseCase) Quote(ctx context.Context, symbol string) (models.LivePrice, error) {
	if uc.stream != nil {
		if lp, ok := uc.stream.Latest(symbol); ok && lp.Price > 0 {
			return lp, nil
		}
	}
	lp, err := uc.feed.Quote(ctx, symbol)
	if err != nil {
		return models.LivePrice{}, fmt.Errorf("quote %s: %w", symbol, err)
	}
	if lp.Price <= 0 {
		return models.LivePrice{}, fmt.Errorf("quote %s: %w", symbol, models.ErrNoData)
	}
	return lp, nil
}

func fresh(bars []models.PriceBar, to time.Time) bool {
	if len(bars) == 0 {
		return false
	}
	return to.Sub(bars[len(bars)-1].Date) <= staleAfter
}

// quoteFromFrame derives a quote from the last two bars when no live quote is
// available.
func quoteFromFrame(frame *models.IndicatorFrame) models.LivePrice {
	last, ok := frame.LastBar()
	if !ok {
		return models.LivePrice{}
	}
	lp := models.LivePrice{
		Symbol:    frame.Symbol,
		Price:     last.Close,
		Open:      last.Open,
		High:      last.High,
		Low:       last.Low,
		Volume:    int64(last.Volume),
		Timestamp: last.Date,
	}
	if n := frame.Len(); n > 1 {
		lp.PrevClose = frame.Bars[n-2].Close
		if lp.PrevClose != 0 {
			lp.Change = lp.Price - lp.PrevClose
			lp.ChangePercent = lp.Change / lp.PrevClose * 100
		}
	}
	return lp
}
