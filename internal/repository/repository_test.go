package repository

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"FinSight/internal/domain/models"
	"FinSight/pkg/kafka"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var artifact = &models.ModelArtifact{Model: []byte(`{"version":1}`), Scaler: []byte(`{"mean":[1]}`)}

func TestFileModelStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileModelStore(filepath.Join(dir, "models"))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Load(ctx, "INFY.NS")
	assert.ErrorIs(t, err, models.ErrArtifactNotFound)

	require.NoError(t, s.Save(ctx, "INFY.NS", artifact))
	assert.FileExists(t, filepath.Join(dir, "models", "INFY.NS_model.json"))
	assert.FileExists(t, filepath.Join(dir, "models", "INFY.NS_scaler.json"))

	got, err := s.Load(ctx, "INFY.NS")
	require.NoError(t, err)
	assert.Equal(t, artifact, got)

	require.NoError(t, s.Delete(ctx, "INFY.NS"))
	require.NoError(t, s.Delete(ctx, "INFY.NS"))
	_, err = s.Load(ctx, "INFY.NS")
	assert.ErrorIs(t, err, models.ErrArtifactNotFound)
}

func TestFileModelStoreHalfPairIsMissing(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileModelStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "TCS.NS_model.json"), []byte("{}"), 0o644))

	_, err = s.Load(context.Background(), "TCS.NS")
	assert.ErrorIs(t, err, models.ErrArtifactNotFound)
}

func TestFileModelStoreIndexKey(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileModelStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), "^NSEI", artifact))
	assert.FileExists(t, filepath.Join(dir, "IDX_NSEI_model.json"))
}

func TestRedisModelStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	s := NewRedisModelStore(client, "finsight:", time.Hour)
	ctx := context.Background()

	_, err := s.Load(ctx, "INFY.NS")
	assert.ErrorIs(t, err, models.ErrArtifactNotFound)

	require.NoError(t, s.Save(ctx, "INFY.NS", artifact))
	assert.True(t, mr.Exists("finsight:model:INFY.NS"))
	assert.Equal(t, time.Hour, mr.TTL("finsight:scaler:INFY.NS"))

	got, err := s.Load(ctx, "INFY.NS")
	require.NoError(t, err)
	assert.Equal(t, artifact, got)

	mr.Del("finsight:scaler:INFY.NS")
	_, err = s.Load(ctx, "INFY.NS")
	assert.ErrorIs(t, err, models.ErrArtifactNotFound)

	require.NoError(t, s.Delete(ctx, "INFY.NS"))
	assert.False(t, mr.Exists("finsight:model:INFY.NS"))
}

func TestCHBarStoreGetLatestNBarsAscending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s := &CHBarStore{db: db, table: "finsight.daily_bars", source: "feed"}

	d1 := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	rows := sqlmock.NewRows([]string{"day", "open", "high", "low", "close", "volume"}).
		AddRow(d2, 11.0, 12.0, 10.0, 11.5, 2000.0).
		AddRow(d1, 10.0, 11.0, 9.0, 10.5, 1000.0)
	mock.ExpectQuery(regexp.QuoteMeta("FROM finsight.daily_bars FINAL")).
		WithArgs("INFY.NS", 2).
		WillReturnRows(rows)

	bars, err := s.GetLatestNBars(context.Background(), "INFY.NS", 2)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, d1, bars[0].Date)
	assert.Equal(t, 11.5, bars[1].Close)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCHBarStoreStoreBarsSkipsInvalid(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s := &CHBarStore{db: db, table: "finsight.daily_bars", source: "kafka"}

	d := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO finsight.daily_bars (symbol, day, open, high, low, close, volume, source) VALUES (?, ?, ?, ?, ?, ?, ?, ?)")).
		WithArgs("TCS.NS", d, 1.0, 2.0, 0.5, 1.5, 100.0, "kafka").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = s.StoreBars(context.Background(), "TCS.NS", []models.PriceBar{
		{Date: d, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100},
		{Date: d.AddDate(0, 0, 1), Close: 0},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.NoError(t, s.StoreBars(context.Background(), "TCS.NS", nil))
}

type fakeProducer struct {
	topic  string
	batch  []kafka.Message
	closed bool
}

func (f *fakeProducer) PublishBatch(_ context.Context, topic string, messages []kafka.Message) error {
	f.topic, f.batch = topic, messages
	return nil
}

func (f *fakeProducer) Close() error {
	f.closed = true
	return nil
}

func TestKafkaRecommendationPublisher(t *testing.T) {
	fp := &fakeProducer{}
	p := NewKafkaRecommendationPublisher(fp, "recommendations")
	rec := &models.Recommendation{
		Symbol:      "INFY.NS",
		Score:       61.5,
		Action:      models.ActionBuy,
		Confidence:  models.ConfidenceMedium,
		GeneratedAt: time.Unix(1717400000, 0),
	}
	require.NoError(t, p.Publish(context.Background(), rec))
	assert.Equal(t, "recommendations", fp.topic)
	require.Len(t, fp.batch, 1)
	assert.Equal(t, []byte("INFY.NS"), fp.batch[0].Key)
	assert.Equal(t, "recommendation.v1", fp.batch[0].Headers["event"])

	raw, err := json.Marshal(fp.batch[0].Value)
	require.NoError(t, err)
	assert.JSONEq(t, `{"symbol":"INFY.NS","action":"BUY","score":61.5,"confidence":"Medium",
		"technical":0,"forecast":0,"trend":0,"volume":0,"summary":"","t":1717400000}`, string(raw))

	require.NoError(t, p.PublishAll(context.Background(), []*models.Recommendation{rec, nil, {Symbol: "TCS.NS"}}))
	require.Len(t, fp.batch, 2)
	assert.Equal(t, []byte("TCS.NS"), fp.batch[1].Key)

	require.NoError(t, p.Close())
	assert.True(t, fp.closed)
}
