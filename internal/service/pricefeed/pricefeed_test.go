package pricefeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"FinSight/internal/domain/models"
	xhttp "FinSight/pkg/http"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dailyChart = `{"chart":{"result":[{
  "meta":{"symbol":"INFY.NS","regularMarketPrice":1510.0,"gmtoffset":19800},
  "timestamp":[1717385700,1717472100,1717558500,1717558600],
  "indicators":{"quote":[{
    "open":[1500.0,null,1505.0,1506.0],
    "high":[1512.0,1515.0,1520.0,1521.0],
    "low":[1495.0,1498.0,1501.0,1502.0],
    "close":[1508.0,1510.0,1515.0,1517.0],
    "volume":[1000,1100,1200,1300]
  }]}
}],"error":null}}`

const intradayChart = `{"chart":{"result":[{
  "meta":{"symbol":"INFY.NS","regularMarketPrice":1520.0,"previousClose":1500.0},
  "timestamp":[1717472100,1717472160,1717472220],
  "indicators":{"quote":[{
    "open":[1502.0,1504.0,null],
    "high":[1506.0,1525.0,1530.0],
    "low":[1499.0,1503.0,1510.0],
    "close":[1504.0,1520.0,null],
    "volume":[10,20,30]
  }]}
}],"error":null}}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "secret", xhttp.NewClient(xhttp.WithTimeout(2*time.Second), xhttp.WithRateLimit(100, 5)))
}

func TestDailyBars(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/INFY.NS", r.URL.Path)
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		assert.Equal(t, "secret", r.Header.Get("X-API-KEY"))
		_, _ = w.Write([]byte(dailyChart))
	})

	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	bars, err := c.DailyBars(context.Background(), "INFY.NS", from, from.AddDate(0, 0, 10))
	require.NoError(t, err)

	// The null-open row is dropped and the duplicate day keeps the later row.
	require.Len(t, bars, 2)
	assert.Equal(t, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), bars[0].Date)
	assert.Equal(t, 1508.0, bars[0].Close)
	assert.Equal(t, time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC), bars[1].Date)
	assert.Equal(t, 1517.0, bars[1].Close)
	assert.Equal(t, 1300.0, bars[1].Volume)
}

func TestDailyBarsNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`))
	})
	_, err := c.DailyBars(context.Background(), "NOPE.NS", time.Now().AddDate(0, 0, -5), time.Now())
	assert.ErrorIs(t, err, models.ErrNoData)
}

func TestDailyBarsChartError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"chart":{"result":[],"error":{"code":"Bad","description":"Invalid range"}}}`))
	})
	_, err := c.DailyBars(context.Background(), "INFY.NS", time.Now().AddDate(0, 0, -5), time.Now())
	assert.ErrorIs(t, err, models.ErrNoData)
}

func TestQuote(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))
		_, _ = w.Write([]byte(intradayChart))
	})

	lp, err := c.Quote(context.Background(), "INFY.NS")
	require.NoError(t, err)
	assert.Equal(t, 1520.0, lp.Price)
	assert.Equal(t, 1502.0, lp.Open)
	assert.Equal(t, 1525.0, lp.High)
	assert.Equal(t, 1499.0, lp.Low)
	assert.Equal(t, int64(30), lp.Volume)
	assert.Equal(t, 1500.0, lp.PrevClose)
	assert.Equal(t, 20.0, lp.Change)
	assert.Equal(t, 1.33, lp.ChangePercent)
	assert.Equal(t, time.Unix(1717472160, 0).UTC(), lp.Timestamp)
}

func TestStreamAppliesTrades(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var sub map[string]string
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subscribed <- sub["symbol"]
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`))
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"trade","data":[{"s":"INFY.NS","p":1515.5,"v":7,"t":1717472160000}]}`))
		// hold the connection open until the client closes it
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	s := NewStream("", "ws"+strings.TrimPrefix(srv.URL, "http"), []string{"INFY.NS"}, 10*time.Millisecond, time.Second)
	s.Seed(models.LivePrice{Symbol: "INFY.NS", Price: 1500, PrevClose: 1500})
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	assert.Equal(t, "INFY.NS", <-subscribed)
	require.Eventually(t, func() bool {
		lp, ok := s.Latest("INFY.NS")
		return ok && lp.Price == 1515.5
	}, 2*time.Second, 10*time.Millisecond)

	lp, _ := s.Latest("INFY.NS")
	assert.Equal(t, 15.5, lp.Change)
	assert.Equal(t, 1.03, lp.ChangePercent)
	assert.Equal(t, int64(7), lp.Volume)

	_, ok := s.Latest("TCS.NS")
	assert.False(t, ok)
}

func TestStreamStartFailsWithoutServer(t *testing.T) {
	s := NewStream("", "ws://127.0.0.1:1/ws", nil, time.Millisecond, time.Second)
	assert.Error(t, s.Start(context.Background()))
	assert.NoError(t, s.Close())
}
