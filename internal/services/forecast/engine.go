package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"FinSight/internal/domain/models"
	"FinSight/internal/domain/repository"
	"FinSight/internal/services/features"
	"FinSight/internal/services/ml"
)

const (
	// MinTrainingRows is the minimum number of sanitized rows a fit needs.
	MinTrainingRows = 30
	// UntrainedConfidence is reported when no model is loaded.
	UntrainedConfidence = 0.5

	minConfidence = 0.6
	maxConfidence = 0.95
	topFeatures   = 10
)

// trainedModel is immutable once built; the engine swaps whole instances.
type trainedModel struct {
	forest  *ml.RandomForest
	scaler  *ml.StandardScaler
	schema  []string
	metrics models.TrainingMetrics
}

// Config holds engine settings.
type Config struct {
	SplitRatio    float64
	ForestOptions []ml.ForestOption
	Now           func() time.Time
}

// Option configures an Engine.
type Option func(*Config)

// Engine owns the model of one symbol. Train and Load are serialized; predictions
// read an immutable model snapshot and never observe a half-trained state.
type Engine struct {
	symbol string
	store  repository.ModelStore
	cfg    Config

	trainMu sync.Mutex
	mu      sync.RWMutex
	model   *trainedModel
}

// NewEngine creates an untrained engine for symbol. store may be nil when
// persistence is not needed.
func NewEngine(symbol string, store repository.ModelStore, opts ...Option) *Engine {
	cfg := Config{SplitRatio: 0.8, Now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Engine{symbol: symbol, store: store, cfg: cfg}
}

// Symbol returns the formatted symbol this engine serves.
func (e *Engine) Symbol() string { return e.symbol }

// Trained reports whether a model is loaded.
func (e *Engine) Trained() bool { return e.snapshot() != nil }

// Metrics returns the metrics of the current model.
func (e *Engine) Metrics() (models.TrainingMetrics, bool) {
	m := e.snapshot()
	if m == nil {
		return models.TrainingMetrics{}, false
	}
	return m.metrics, true
}

func (e *Engine) snapshot() *trainedModel {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.model
}

func (e *Engine) swap(m *trainedModel) {
	e.mu.Lock()
	e.model = m
	e.mu.Unlock()
}

// Train fits a new model on frame and replaces the current one. Insufficient
// data leaves the engine untouched; numeric failures reset it to untrained.
func (e *Engine) Train(frame *models.IndicatorFrame) (models.TrainingMetrics, error) {
	e.trainMu.Lock()
	defer e.trainMu.Unlock()

	fs, err := features.Build(frame)
	if err != nil {
		return models.TrainingMetrics{}, err
	}
	x, y, err := features.Sanitize(fs.Rows, fs.Targets)
	if err != nil {
		e.swap(nil)
		return models.TrainingMetrics{}, fmt.Errorf("training failed: %w", err)
	}
	if len(x) < MinTrainingRows {
		return models.TrainingMetrics{}, fmt.Errorf("%d usable rows, need %d: %w", len(x), MinTrainingRows, models.ErrDataInsufficient)
	}

	m, err := e.fit(fs.Schema, x, y)
	if err != nil {
		e.swap(nil)
		return models.TrainingMetrics{}, fmt.Errorf("training failed: %w", err)
	}
	e.swap(m)
	return m.metrics, nil
}

func (e *Engine) fit(schema []string, x [][]float64, y []float64) (*trainedModel, error) {
	n := len(x)
	nTest := int(math.Ceil(float64(n) * (1 - e.cfg.SplitRatio)))
	nTrain := n - nTest
	if nTrain < 2 || nTest < 1 {
		return nil, fmt.Errorf("split %d/%d: %w", nTrain, nTest, models.ErrNumericDegenerate)
	}
	xTrain, yTrain := x[:nTrain], y[:nTrain]
	xTest, yTest := x[nTrain:], y[nTrain:]

	scaler := &ml.StandardScaler{}
	if err := scaler.Fit(xTrain); err != nil {
		return nil, degenerate(err)
	}
	sTrain, err := scaler.TransformBatch(xTrain)
	if err != nil {
		return nil, degenerate(err)
	}
	sTest, err := scaler.TransformBatch(xTest)
	if err != nil {
		return nil, degenerate(err)
	}

	forest := ml.NewRandomForest(e.cfg.ForestOptions...)
	if err := forest.Fit(sTrain, yTrain); err != nil {
		return nil, degenerate(err)
	}
	pTrain, err := forest.PredictBatch(sTrain)
	if err != nil {
		return nil, degenerate(err)
	}
	pTest, err := forest.PredictBatch(sTest)
	if err != nil {
		return nil, degenerate(err)
	}

	metrics := models.TrainingMetrics{
		TrainMAE:     ml.Round(ml.MAE(yTrain, pTrain), 2),
		TestMAE:      ml.Round(ml.MAE(yTest, pTest), 2),
		TrainRMSE:    ml.Round(ml.RMSE(yTrain, pTrain), 2),
		TestRMSE:     ml.Round(ml.RMSE(yTest, pTest), 2),
		TrainR2:      ml.Round(ml.R2(yTrain, pTrain), 4),
		TestR2:       ml.Round(ml.R2(yTest, pTest), 4),
		TrainSamples: nTrain,
		TestSamples:  nTest,
		Features:     len(schema),
		TrainedAt:    e.cfg.Now().UTC(),
	}
	return &trainedModel{
		forest:  forest,
		scaler:  scaler,
		schema:  append([]string(nil), schema...),
		metrics: metrics,
	}, nil
}

func degenerate(err error) error {
	if errors.Is(err, models.ErrNumericDegenerate) {
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrNumericDegenerate, err)
}

// PredictNextStep forecasts the close following the newest row of frame.
func (e *Engine) PredictNextStep(frame *models.IndicatorFrame) (models.NextStepPrediction, error) {
	m := e.snapshot()
	if m == nil {
		return models.NextStepPrediction{}, models.ErrNotTrained
	}
	row, err := features.LatestRow(frame, m.schema)
	if err != nil {
		return models.NextStepPrediction{}, err
	}
	predicted, ok, err := m.predict(row)
	if err != nil {
		return models.NextStepPrediction{}, err
	}
	if !ok {
		return models.NextStepPrediction{}, models.ErrNoValidRow
	}

	last, _ := frame.LastBar()
	current := last.Close
	changePct := 0.0
	if current != 0 {
		changePct = (predicted - current) / current * 100
	}
	return models.NextStepPrediction{
		CurrentPrice:   ml.Round(current, 2),
		PredictedPrice: ml.Round(predicted, 2),
		Change:         ml.Round(predicted-current, 2),
		ChangePercent:  ml.Round(changePct, 2),
		Confidence:     m.confidence(),
	}, nil
}

// predict sanitizes, scales and scores one raw row. ok is false when the row does
// not survive sanitization.
func (m *trainedModel) predict(row []float64) (float64, bool, error) {
	clean, ok := features.SanitizeRow(row)
	if !ok {
		return 0, false, nil
	}
	scaled, err := m.scaler.Transform(clean)
	if err != nil {
		return 0, false, err
	}
	v, err := m.forest.Predict(scaled)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// Confidence maps the dispersion of the feature importances to [0.6, 0.95]; more
// balanced reliance across features reads as more stable. It is not a prediction
// interval. Untrained engines report 0.5.
func (e *Engine) Confidence() float64 {
	m := e.snapshot()
	if m == nil {
		return UntrainedConfidence
	}
	return m.confidence()
}

func (m *trainedModel) confidence() float64 {
	imp := m.forest.Importances
	if len(imp) == 0 {
		return minConfidence
	}
	mean := 0.0
	for _, v := range imp {
		mean += v
	}
	mean /= float64(len(imp))
	variance := 0.0
	for _, v := range imp {
		variance += (v - mean) * (v - mean)
	}
	std := math.Sqrt(variance / float64(len(imp)))
	return ml.Round(math.Max(minConfidence, math.Min(maxConfidence, 1-std)), 2)
}

// FeatureImportance returns the ten most important features, or nil when untrained.
func (e *Engine) FeatureImportance() []models.FeatureImportance {
	m := e.snapshot()
	if m == nil {
		return nil
	}
	out := make([]models.FeatureImportance, len(m.schema))
	for i, name := range m.schema {
		out[i] = models.FeatureImportance{Feature: name, Importance: ml.Round(m.forest.Importances[i], 4)}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Importance > out[b].Importance })
	if len(out) > topFeatures {
		out = out[:topFeatures]
	}
	return out
}

// Save persists the current model under the engine's symbol.
func (e *Engine) Save(ctx context.Context) error {
	m := e.snapshot()
	if m == nil {
		return models.ErrNotTrained
	}
	if e.store == nil {
		return errors.New("no model store configured")
	}
	a, err := encodeArtifact(m)
	if err != nil {
		return fmt.Errorf("encode model %s: %w", e.symbol, err)
	}
	if err := e.store.Save(ctx, e.symbol, a); err != nil {
		return fmt.Errorf("save model %s: %w", e.symbol, err)
	}
	return nil
}

// Load replaces the current model with the persisted one. Any failure (missing
// or corrupt artifact) leaves the engine untrained and returns false.
func (e *Engine) Load(ctx context.Context) bool {
	e.trainMu.Lock()
	defer e.trainMu.Unlock()

	if e.store == nil {
		e.swap(nil)
		return false
	}
	a, err := e.store.Load(ctx, e.symbol)
	if err != nil {
		e.swap(nil)
		return false
	}
	m, err := decodeArtifact(a)
	if err != nil {
		e.swap(nil)
		return false
	}
	e.swap(m)
	return true
}

// Reset drops the current model.
func (e *Engine) Reset() { e.swap(nil) }

// WithSplitRatio sets the chronological train share (default 0.8).
func WithSplitRatio(r float64) Option {
	return func(c *Config) { c.SplitRatio = r }
}

// WithForestOptions forwards options to every forest this engine fits.
func WithForestOptions(opts ...ml.ForestOption) Option {
	return func(c *Config) { c.ForestOptions = append(c.ForestOptions, opts...) }
}

// WithClock overrides the clock used to stamp training runs.
func WithClock(now func() time.Time) Option {
	return func(c *Config) { c.Now = now }
}
