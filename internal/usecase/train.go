package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinSight/internal/domain/models"
	domrepo "FinSight/internal/domain/repository"
	"FinSight/internal/services/forecast"
	"FinSight/pkg/cache"
	applogger "FinSight/pkg/logger"
	pkgmetrics "FinSight/pkg/metrics"
	"FinSight/pkg/queue"
	"FinSight/pkg/util"
)

// TrainMessageType is the queue message type of an asynchronous training run.
const TrainMessageType = "train_model"

const trainLockTTL = 10 * time.Minute

// Enqueuer schedules queue messages and reports on them.
type Enqueuer interface {
	EnqueueWithID(ctx context.Context, msgType string, payload interface{}) (string, error)
	Status(ctx context.Context, id string) (*queue.JobStatus, error)
}

// TrainPayload is the queue payload of TrainMessageType.
type TrainPayload struct {
	Symbol      string `json:"symbol"`
	HistoryDays int    `json:"history_days"`
}

// TrainUseCase fits, persists and inspects per-symbol models.
type TrainUseCase struct {
	history     *HistoryUseCase
	registry    *forecast.Registry
	locks       cache.Service
	queue       Enqueuer
	metrics     domrepo.Metrics
	historyDays int
	l           *applogger.Logger
}

// NewTrainUseCase creates the use case. locks and queue may be nil: without
// locks concurrent runs on one symbol are serialized by the engine only, and
// without a queue asynchronous requests run synchronously.
func NewTrainUseCase(history *HistoryUseCase, registry *forecast.Registry, locks cache.Service, q Enqueuer, metrics domrepo.Metrics, historyDays int) *TrainUseCase {
	if historyDays <= 0 {
		historyDays = domrepo.TrainingHistoryDays
	}
	if metrics == nil {
		metrics = pkgmetrics.Nop{}
	}
	return &TrainUseCase{
		history:     history,
		registry:    registry,
		locks:       locks,
		queue:       q,
		metrics:     metrics,
		historyDays: historyDays,
	}
}

func (uc *TrainUseCase) SetLogger(l *applogger.Logger) { uc.l = l }

// Train fetches historyDays of bars, fits a fresh model and saves it.
func (uc *TrainUseCase) Train(ctx context.Context, symbol string, historyDays int) (*models.TrainingReport, error) {
	symbol = util.FormatSymbol(symbol)
	if historyDays <= 0 {
		historyDays = uc.historyDays
	}
	historyDays = domrepo.NormalizeHistoryDays(historyDays)

	var eng *forecast.Engine
	err := withTrainLock(ctx, uc.locks, symbol, uc.l, func() error {
		frame, err := uc.history.Frame(ctx, symbol, historyDays)
		if err != nil {
			return err
		}
		eng = uc.registry.Engine(symbol)
		_, err = fitAndSave(ctx, eng, frame, uc.metrics, uc.l)
		return err
	})
	if err != nil {
		return nil, err
	}
	return report(eng), nil
}

// TrainAsync queues a training run and returns at once. Without a queue it
// trains synchronously.
func (uc *TrainUseCase) TrainAsync(ctx context.Context, symbol string, historyDays int) (*models.TrainingReport, error) {
	if uc.queue == nil {
		return uc.Train(ctx, symbol, historyDays)
	}
	symbol = util.FormatSymbol(symbol)
	id, err := uc.queue.EnqueueWithID(ctx, TrainMessageType, TrainPayload{Symbol: symbol, HistoryDays: historyDays})
	if err != nil {
		return nil, fmt.Errorf("enqueue training %s: %w", symbol, err)
	}
	uc.l.Info("training queued", applogger.String("symbol", symbol), applogger.String("job_id", id))
	return &models.TrainingReport{Symbol: symbol, JobID: id, Queued: true}, nil
}

// JobStatus reports a training run queued by TrainAsync.
func (uc *TrainUseCase) JobStatus(ctx context.Context, id string) (*models.TrainingJob, error) {
	if uc.queue == nil {
		return nil, queue.ErrNotRunning
	}
	st, err := uc.queue.Status(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.TrainingJob{
		JobID:     st.ID,
		State:     string(st.State),
		Attempts:  st.Attempts,
		Error:     st.Error,
		UpdatedAt: st.UpdatedAt,
	}, nil
}

// FeatureImportance reports the current model of symbol, loading it from the
// store when needed.
func (uc *TrainUseCase) FeatureImportance(ctx context.Context, symbol string) (*models.TrainingReport, error) {
	symbol = util.FormatSymbol(symbol)
	eng := uc.registry.Engine(symbol)
	if !eng.Trained() && !eng.Load(ctx) {
		return nil, fmt.Errorf("feature importance %s: %w", symbol, models.ErrNotTrained)
	}
	return report(eng), nil
}

func report(eng *forecast.Engine) *models.TrainingReport {
	metrics, _ := eng.Metrics()
	return &models.TrainingReport{
		Symbol:      eng.Symbol(),
		Metrics:     metrics,
		TopFeatures: eng.FeatureImportance(),
		Confidence:  eng.Confidence(),
	}
}

// withTrainLock runs fit while holding the per-symbol training lock. A held
// lock yields ErrTrainingInProgress. With nil locks fit runs unguarded.
func withTrainLock(ctx context.Context, locks cache.Service, symbol string, l *applogger.Logger, fit func() error) error {
	if locks == nil {
		return fit()
	}
	release, err := locks.Lock(ctx, cache.Key("train", symbol), trainLockTTL)
	if errors.Is(err, cache.ErrLocked) {
		return fmt.Errorf("train %s: %w", symbol, models.ErrTrainingInProgress)
	}
	if err != nil {
		return fmt.Errorf("train lock %s: %w", symbol, err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			l.Warn("train unlock failed", applogger.String("symbol", symbol), applogger.Error(err))
		}
	}()
	return fit()
}

// fitAndSave trains eng on frame and persists the result. A failed save is
// logged; the in-memory model stays usable.
func fitAndSave(ctx context.Context, eng *forecast.Engine, frame *models.IndicatorFrame, metrics domrepo.Metrics, l *applogger.Logger) (models.TrainingMetrics, error) {
	start := time.Now()
	m, err := eng.Train(frame)
	elapsed := time.Since(start)
	metrics.RecordTraining(eng.Symbol(), elapsed.Seconds(), err == nil)
	if err != nil {
		l.Warn("training failed", applogger.String("symbol", eng.Symbol()), applogger.Error(err))
		return models.TrainingMetrics{}, fmt.Errorf("train %s: %w", eng.Symbol(), err)
	}
	l.Info("model trained",
		applogger.String("symbol", eng.Symbol()),
		applogger.Int("train_samples", m.TrainSamples),
		applogger.Float64("test_mae", m.TestMAE),
		applogger.Float64("test_r2", m.TestR2),
		applogger.Duration("duration_ms", elapsed))

	if err := eng.Save(ctx); err != nil {
		metrics.RecordError("model_save")
		l.Error("model save failed", applogger.String("symbol", eng.Symbol()), applogger.Error(err))
	}
	return m, nil
}

// TrainJob runs queued training requests.
type TrainJob struct {
	uc *TrainUseCase
}

func NewTrainJob(uc *TrainUseCase) *TrainJob { return &TrainJob{uc: uc} }

func (j *TrainJob) Name() string { return "train_model_job" }
func (j *TrainJob) Type() string { return TrainMessageType }

// Handle trains the payload's symbol. Data problems are permanent; everything
// else is retried by the queue.
func (j *TrainJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[TrainPayload](payload)
	if err != nil {
		return fmt.Errorf("%w: %v", queue.ErrPermanent, err)
	}
	if p.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", queue.ErrPermanent)
	}
	if p.HistoryDays != 0 && !domrepo.IsValidHistoryDays(p.HistoryDays) {
		return fmt.Errorf("%w: history_days %d out of range", queue.ErrPermanent, p.HistoryDays)
	}
	rep, err := j.uc.Train(ctx, p.Symbol, p.HistoryDays)
	switch {
	case err == nil:
		j.uc.l.Info("queued training done",
			applogger.String("symbol", rep.Symbol),
			applogger.String("job_id", queue.MessageID(ctx)),
			applogger.Float64("confidence", rep.Confidence))
		return nil
	case errors.Is(err, models.ErrDataInsufficient), errors.Is(err, models.ErrNoData), errors.Is(err, models.ErrNumericDegenerate):
		return fmt.Errorf("%w: %v", queue.ErrPermanent, err)
	default:
		return err
	}
}

var _ queue.Job = (*TrainJob)(nil)
