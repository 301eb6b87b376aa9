// Package pricefeed talks to the upstream market data provider: a chart-style
// REST API for daily history and quotes, and a websocket stream for live trades.
package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"FinSight/internal/domain/models"
	drepo "FinSight/internal/domain/repository"
	xhttp "FinSight/pkg/http"
	applogger "FinSight/pkg/logger"
	"FinSight/pkg/util"
)

// Client implements PriceFeed over the chart endpoint
// {baseURL}/v8/finance/chart/{symbol}.
type Client struct {
	baseURL string
	apiKey  string
	http    *xhttp.Client
	l       *applogger.Logger
}

// NewClient creates a feed client. httpClient carries the timeout and the
// outbound rate limit.
func NewClient(baseURL, apiKey string, httpClient *xhttp.Client) *Client {
	return &Client{baseURL: baseURL, apiKey: apiKey, http: httpClient}
}

// SetLogger injects a structured logger.
func (c *Client) SetLogger(l *applogger.Logger) { c.l = l }

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta struct {
		Symbol             string  `json:"symbol"`
		RegularMarketPrice float64 `json:"regularMarketPrice"`
		RegularMarketTime  int64   `json:"regularMarketTime"`
		PreviousClose      float64 `json:"previousClose"`
		ChartPreviousClose float64 `json:"chartPreviousClose"`
		GMTOffset          int64   `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

func (c *Client) chart(ctx context.Context, symbol string, params map[string][]string) (*chartResult, error) {
	headers := map[string]string{"Accept": "application/json"}
	if c.apiKey != "" {
		headers["X-API-KEY"] = c.apiKey
	}
	var resp chartResponse
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  http.MethodGet,
		URL:     c.baseURL + "/v8/finance/chart/" + url.PathEscape(symbol),
		Headers: headers,
		Query:   params,
	}, &resp)
	if err != nil {
		var se *xhttp.StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return nil, fmt.Errorf("symbol %s: %w", symbol, models.ErrNoData)
		}
		return nil, fmt.Errorf("chart %s: %w", symbol, err)
	}
	if resp.Chart.Error != nil {
		return nil, fmt.Errorf("chart %s: %s: %w", symbol, resp.Chart.Error.Description, models.ErrNoData)
	}
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("chart %s: empty result: %w", symbol, models.ErrNoData)
	}
	return &resp.Chart.Result[0], nil
}

// DailyBars returns ascending daily bars in [from, to]. Rows with a missing
// price field are skipped; a second row for the same day replaces the first.
func (c *Client) DailyBars(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceBar, error) {
	start := time.Now()
	res, err := c.chart(ctx, symbol, map[string][]string{
		"period1":  {strconv.FormatInt(from.Unix(), 10)},
		"period2":  {strconv.FormatInt(to.Add(24*time.Hour).Unix(), 10)},
		"interval": {"1d"},
		"events":   {"history"},
	})
	if err != nil {
		return nil, err
	}

	q := res.Indicators.Quote[0]
	bars := make([]models.PriceBar, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		o, h, lo, cl, ok := ohlc(q.Open, q.High, q.Low, q.Close, i)
		if !ok {
			continue
		}
		day := util.TradingDay(time.Unix(ts+res.Meta.GMTOffset, 0))
		bar := models.PriceBar{Date: day, Open: o, High: h, Low: lo, Close: cl, Volume: at(q.Volume, i)}
		if n := len(bars); n > 0 && !day.After(bars[n-1].Date) {
			if day.Equal(bars[n-1].Date) {
				bars[n-1] = bar
			}
			continue
		}
		bars = append(bars, bar)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no bars for %s: %w", symbol, models.ErrNoData)
	}
	if c.l != nil {
		c.l.Debug("price feed daily bars",
			applogger.String("symbol", symbol),
			applogger.Int("rows", len(bars)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return bars, nil
}

// Quote summarizes today's intraday series: last close, first open, high/low
// range and total volume, with change measured against the previous close.
func (c *Client) Quote(ctx context.Context, symbol string) (models.LivePrice, error) {
	res, err := c.chart(ctx, symbol, map[string][]string{
		"range":    {"1d"},
		"interval": {"1m"},
	})
	if err != nil {
		return models.LivePrice{}, err
	}

	q := res.Indicators.Quote[0]
	lp := models.LivePrice{Symbol: symbol, Low: math.Inf(1)}
	var last int64
	for i, ts := range res.Timestamp {
		o, h, lo, cl, ok := ohlc(q.Open, q.High, q.Low, q.Close, i)
		if !ok {
			continue
		}
		if lp.Open == 0 {
			lp.Open = o
		}
		lp.Price = cl
		lp.High = math.Max(lp.High, h)
		lp.Low = math.Min(lp.Low, lo)
		lp.Volume += int64(at(q.Volume, i))
		last = ts
	}
	if lp.Price == 0 {
		if res.Meta.RegularMarketPrice <= 0 {
			return models.LivePrice{}, fmt.Errorf("no quote for %s: %w", symbol, models.ErrNoData)
		}
		lp.Price = res.Meta.RegularMarketPrice
		lp.Open, lp.High, lp.Low = lp.Price, lp.Price, lp.Price
		last = res.Meta.RegularMarketTime
	}

	lp.PrevClose = res.Meta.PreviousClose
	if lp.PrevClose <= 0 {
		lp.PrevClose = res.Meta.ChartPreviousClose
	}
	if lp.PrevClose <= 0 {
		lp.PrevClose = lp.Open
	}
	lp.Change = lp.Price - lp.PrevClose
	if lp.PrevClose != 0 {
		lp.ChangePercent = lp.Change / lp.PrevClose * 100
	}
	lp.Timestamp = time.Unix(last, 0).UTC()
	return roundQuote(lp), nil
}

func roundQuote(lp models.LivePrice) models.LivePrice {
	lp.Price = round2(lp.Price)
	lp.Open = round2(lp.Open)
	lp.High = round2(lp.High)
	lp.Low = round2(lp.Low)
	lp.PrevClose = round2(lp.PrevClose)
	lp.Change = round2(lp.Change)
	lp.ChangePercent = round2(lp.ChangePercent)
	return lp
}

func ohlc(open, high, low, cl []*float64, i int) (float64, float64, float64, float64, bool) {
	if i >= len(open) || i >= len(high) || i >= len(low) || i >= len(cl) {
		return 0, 0, 0, 0, false
	}
	if open[i] == nil || high[i] == nil || low[i] == nil || cl[i] == nil || *cl[i] <= 0 {
		return 0, 0, 0, 0, false
	}
	return *open[i], *high[i], *low[i], *cl[i], true
}

func at(xs []*float64, i int) float64 {
	if i >= len(xs) || xs[i] == nil {
		return 0
	}
	return *xs[i]
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

var _ drepo.PriceFeed = (*Client)(nil)
