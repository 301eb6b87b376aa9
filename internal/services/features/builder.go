package features

import (
	"errors"
	"fmt"
	"math"

	"FinSight/internal/domain/models"

	"gonum.org/v1/gonum/stat"
)

const (
	// MinRows is the minimum clean history needed to build a feature set.
	MinRows = 50
	// MinBaseColumns is the minimum number of canonical base columns required.
	MinBaseColumns = 10

	rollingWindow = 7
)

// Derived feature names.
const (
	ColPriceRange   = "Price_Range"
	ColPriceChange  = "Price_Change"
	ColVolumeChange = "Volume_Change"
	ColCloseMean7   = "Close_Rolling_Mean_7"
	ColCloseStd7    = "Close_Rolling_Std_7"
	ColVolumeMean7  = "Volume_Rolling_Mean_7"
)

// ErrSchemaMismatch is returned when a frame cannot produce a column of a
// recorded schema. It signals a caller bug and is never retried.
var ErrSchemaMismatch = errors.New("feature schema mismatch")

// BaseColumns is the canonical base column list, in schema order.
var BaseColumns = []string{
	models.ColOpen, models.ColHigh, models.ColLow, models.ColVolume,
	models.ColSMA20, models.ColSMA50, models.ColEMA12, models.ColEMA26,
	models.ColRSI, models.ColMACD, models.ColMACDSignal, models.ColMACDHistogram,
	models.ColBBUpper, models.ColBBMiddle, models.ColBBLower, models.ColROC, models.ColATR,
}

// LagOffsets are the lags applied to close and volume.
var LagOffsets = []int{1, 2, 3, 5, 7}

// CloseLag returns the name of the close lag-k feature.
func CloseLag(k int) string { return fmt.Sprintf("Close_Lag_%d", k) }

// VolumeLag returns the name of the volume lag-k feature.
func VolumeLag(k int) string { return fmt.Sprintf("Volume_Lag_%d", k) }

// DerivedColumns returns the derived feature names in schema order.
func DerivedColumns() []string {
	out := []string{ColPriceRange, ColPriceChange, ColVolumeChange}
	for _, k := range LagOffsets {
		out = append(out, CloseLag(k))
	}
	for _, k := range LagOffsets {
		out = append(out, VolumeLag(k))
	}
	return append(out, ColCloseMean7, ColCloseStd7, ColVolumeMean7)
}

// FeatureSet is a training matrix plus the newest (inference) row. Rows and
// Latest are unsanitized; callers run Sanitize / SanitizeRow before use.
type FeatureSet struct {
	Schema      []string
	Rows        [][]float64
	Targets     []float64
	Latest      []float64
	LatestClose float64
}

// Build turns an indicator frame into a feature set. Row i is paired with the
// close of row i+1; the newest row has no target and becomes Latest.
func Build(frame *models.IndicatorFrame) (*FeatureSet, error) {
	if frame.Len() == 0 {
		return nil, models.ErrNoData
	}
	base := presentBase(frame)
	keep := cleanRows(frame, base)
	if len(keep) < MinRows {
		return nil, fmt.Errorf("%d clean rows, need %d: %w", len(keep), MinRows, models.ErrDataInsufficient)
	}
	if len(base) < MinBaseColumns {
		return nil, fmt.Errorf("%d base columns, need %d: %w", len(base), MinBaseColumns, models.ErrDataInsufficient)
	}

	schema := append(append([]string{}, base...), DerivedColumns()...)
	table := derive(frame, keep, base)

	m := len(keep)
	fs := &FeatureSet{
		Schema:      schema,
		Rows:        make([][]float64, 0, m-1),
		Targets:     make([]float64, 0, m-1),
		LatestClose: frame.Bars[keep[m-1]].Close,
	}
	for j := 0; j < m; j++ {
		row := make([]float64, len(schema))
		for c, name := range schema {
			row[c] = table[name][j]
		}
		if j == m-1 {
			fs.Latest = row
			break
		}
		fs.Rows = append(fs.Rows, row)
		fs.Targets = append(fs.Targets, frame.Bars[keep[j+1]].Close)
	}
	return fs, nil
}

// LatestRow rebuilds the newest feature row of frame for a recorded schema.
func LatestRow(frame *models.IndicatorFrame, schema []string) ([]float64, error) {
	if frame.Len() == 0 {
		return nil, models.ErrNoData
	}
	base := make([]string, 0, len(BaseColumns))
	for _, name := range BaseColumns {
		if contains(schema, name) {
			if !frame.Has(name) {
				return nil, fmt.Errorf("column %s: %w", name, ErrSchemaMismatch)
			}
			base = append(base, name)
		}
	}
	keep := cleanRows(frame, base)
	if len(keep) == 0 {
		return nil, models.ErrNoValidRow
	}
	table := derive(frame, keep, base)
	last := len(keep) - 1
	row := make([]float64, len(schema))
	for c, name := range schema {
		col, ok := table[name]
		if !ok {
			return nil, fmt.Errorf("column %s: %w", name, ErrSchemaMismatch)
		}
		row[c] = col[last]
	}
	return row, nil
}

func presentBase(frame *models.IndicatorFrame) []string {
	out := make([]string, 0, len(BaseColumns))
	for _, name := range BaseColumns {
		if frame.Has(name) {
			out = append(out, name)
		}
	}
	return out
}

// cleanRows returns the indices of rows where close and every base column hold a value.
func cleanRows(frame *models.IndicatorFrame, base []string) []int {
	keep := make([]int, 0, frame.Len())
rows:
	for i := 0; i < frame.Len(); i++ {
		if _, ok := frame.Value(models.ColClose, i); !ok {
			continue
		}
		for _, name := range base {
			if _, ok := frame.Value(name, i); !ok {
				continue rows
			}
		}
		keep = append(keep, i)
	}
	return keep
}

// derive computes every base and derived column over the kept rows. Positions
// without enough history hold NaN.
func derive(frame *models.IndicatorFrame, keep []int, base []string) map[string][]float64 {
	m := len(keep)
	table := make(map[string][]float64, len(base)+19)
	for _, name := range base {
		col := make([]float64, m)
		for j, i := range keep {
			col[j], _ = frame.Value(name, i)
		}
		table[name] = col
	}

	closes := make([]float64, m)
	volumes := make([]float64, m)
	rng := make([]float64, m)
	chg := make([]float64, m)
	for j, i := range keep {
		b := frame.Bars[i]
		closes[j], volumes[j] = b.Close, b.Volume
		rng[j] = b.High - b.Low
		chg[j] = b.Close - b.Open
	}
	table[ColPriceRange] = rng
	table[ColPriceChange] = chg

	volChg := make([]float64, m)
	volChg[0] = math.NaN()
	for j := 1; j < m; j++ {
		volChg[j] = volumes[j]/volumes[j-1] - 1
	}
	table[ColVolumeChange] = volChg

	for _, k := range LagOffsets {
		table[CloseLag(k)] = shift(closes, k)
		table[VolumeLag(k)] = shift(volumes, k)
	}

	closeMean := make([]float64, m)
	closeStd := make([]float64, m)
	volMean := make([]float64, m)
	for j := 0; j < m; j++ {
		if j < rollingWindow-1 {
			closeMean[j], closeStd[j], volMean[j] = math.NaN(), math.NaN(), math.NaN()
			continue
		}
		w := closes[j-rollingWindow+1 : j+1]
		closeMean[j], closeStd[j] = stat.MeanStdDev(w, nil)
		volMean[j] = stat.Mean(volumes[j-rollingWindow+1:j+1], nil)
	}
	table[ColCloseMean7] = closeMean
	table[ColCloseStd7] = closeStd
	table[ColVolumeMean7] = volMean
	return table
}

func shift(src []float64, k int) []float64 {
	out := make([]float64, len(src))
	for j := range out {
		if j < k {
			out[j] = math.NaN()
			continue
		}
		out[j] = src[j-k]
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
