package forecast

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"StockPulse/internal/domain/models"
)

// RobustScaler centers each column on its median and scales by the
// interquartile range, so outlier candles do not dominate the scale the way
// they would with min-max or z-score scaling.
type RobustScaler struct {
	Columns []string  `json:"columns"`
	Medians []float64 `json:"medians"`
	IQRs    []float64 `json:"iqrs"`
	Fitted  bool      `json:"fitted"`
}

func NewRobustScaler() *RobustScaler { return &RobustScaler{} }

// Fit computes per-column statistics from a row-major matrix.
func (s *RobustScaler) Fit(m [][]float64, columns []string) error {
	if len(m) == 0 || len(columns) == 0 {
		return fmt.Errorf("%w: empty matrix", models.ErrScaling)
	}
	for _, row := range m {
		if len(row) != len(columns) {
			return fmt.Errorf("%w: row width %d != %d columns", models.ErrScaling, len(row), len(columns))
		}
	}

	s.Columns = append([]string(nil), columns...)
	s.Medians = make([]float64, len(columns))
	s.IQRs = make([]float64, len(columns))

	buf := make([]float64, len(m))
	for j := range columns {
		for i, row := range m {
			v := row[j]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: non-finite value in column %s", models.ErrScaling, columns[j])
			}
			buf[i] = v
		}
		sort.Float64s(buf)
		s.Medians[j] = stat.Quantile(0.5, stat.LinInterp, buf, nil)
		iqr := stat.Quantile(0.75, stat.LinInterp, buf, nil) - stat.Quantile(0.25, stat.LinInterp, buf, nil)
		if iqr == 0 {
			// constant column: pass values through centered only
			iqr = 1
		}
		s.IQRs[j] = iqr
	}
	s.Fitted = true
	return nil
}

// Transform scales a row-major matrix with the fitted statistics.
func (s *RobustScaler) Transform(m [][]float64) ([][]float64, error) {
	if !s.Fitted {
		return nil, fmt.Errorf("%w: transform before fit", models.ErrScaling)
	}
	out := make([][]float64, len(m))
	for i, row := range m {
		if len(row) != len(s.Columns) {
			return nil, fmt.Errorf("%w: row width %d != %d columns", models.ErrScaling, len(row), len(s.Columns))
		}
		scaled := make([]float64, len(row))
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: non-finite value in column %s", models.ErrScaling, s.Columns[j])
			}
			scaled[j] = (v - s.Medians[j]) / s.IQRs[j]
		}
		out[i] = scaled
	}
	return out, nil
}

// FitTransform fits on m and returns the scaled matrix.
func (s *RobustScaler) FitTransform(m [][]float64, columns []string) ([][]float64, error) {
	if err := s.Fit(m, columns); err != nil {
		return nil, err
	}
	return s.Transform(m)
}

// InverseValue maps one scaled value back to its original unit.
func (s *RobustScaler) InverseValue(col int, v float64) (float64, error) {
	if !s.Fitted {
		return 0, fmt.Errorf("%w: inverse before fit", models.ErrScaling)
	}
	if col < 0 || col >= len(s.Columns) {
		return 0, fmt.Errorf("%w: column index %d out of range", models.ErrScaling, col)
	}
	return v*s.IQRs[col] + s.Medians[col], nil
}

// ColumnIndex returns the fitted position of a column, -1 when absent.
func (s *RobustScaler) ColumnIndex(name string) int {
	for i, c := range s.Columns {
		if c == name {
			return i
		}
	}
	return -1
}
