package forecast

import (
	"errors"
	"fmt"

	"FinSight/internal/domain/models"
	"FinSight/internal/services/features"
	"FinSight/internal/services/ml"
)

// PredictPath forecasts up to horizon days by feeding each prediction back as the
// next day's lag-1 close. Existing close lags shift down one slot where the
// previous slot exists (lag-2 takes lag-1, lag-3 takes lag-2). Rolling statistics
// and every non-close feature stay at their last observed values, so later days
// carry more uncertainty than the confidence score reflects.
//
// A row that fails sanitization ends the path early; the prefix computed so far
// is returned with a nil error.
func (e *Engine) PredictPath(frame *models.IndicatorFrame, horizon int) ([]models.ForecastPoint, error) {
	if horizon < 1 {
		return nil, fmt.Errorf("horizon must be at least 1, got %d", horizon)
	}
	m := e.snapshot()
	if m == nil {
		return nil, models.ErrNotTrained
	}
	row, err := features.LatestRow(frame, m.schema)
	if errors.Is(err, models.ErrNoValidRow) {
		return []models.ForecastPoint{}, nil
	}
	if err != nil {
		return nil, err
	}

	shifts := lagShifts(m.schema)
	points := make([]models.ForecastPoint, 0, horizon)
	for day := 1; day <= horizon; day++ {
		predicted, ok, err := m.predict(row)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		points = append(points, models.ForecastPoint{Day: day, Price: ml.Round(predicted, 2)})
		row = propagate(row, shifts, predicted)
	}
	return points, nil
}

// lagShift moves the value at column from into column to.
type lagShift struct{ to, from int }

// lagShifts lists the close-lag moves for a schema, highest lag first so every
// move reads the previous day's value. The final entry (from == -1) marks lag-1,
// which receives the new prediction.
func lagShifts(schema []string) []lagShift {
	pos := make(map[string]int, len(schema))
	for i, name := range schema {
		pos[name] = i
	}
	var out []lagShift
	for i := len(features.LagOffsets) - 1; i >= 0; i-- {
		k := features.LagOffsets[i]
		to, ok := pos[features.CloseLag(k)]
		if !ok {
			continue
		}
		if k == 1 {
			out = append(out, lagShift{to: to, from: -1})
			continue
		}
		if from, ok := pos[features.CloseLag(k-1)]; ok {
			out = append(out, lagShift{to: to, from: from})
		}
	}
	return out
}

func propagate(row []float64, shifts []lagShift, predicted float64) []float64 {
	next := append([]float64(nil), row...)
	for _, s := range shifts {
		if s.from < 0 {
			next[s.to] = predicted
			continue
		}
		next[s.to] = row[s.from]
	}
	return next
}
