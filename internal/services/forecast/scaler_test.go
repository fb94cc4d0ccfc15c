package forecast

import (
	"errors"
	"math"
	"testing"

	"StockPulse/internal/domain/models"
)

func sampleMatrix(rows int) ([][]float64, []string) {
	cols := []string{"close", "volume", "returns"}
	m := make([][]float64, rows)
	for i := range m {
		m[i] = []float64{
			100 + 3*math.Sin(float64(i)),
			1e6 + 1e4*float64(i%7),
			0.001 * float64(i%11-5),
		}
	}
	return m, cols
}

func TestRobustScalerRoundTrip(t *testing.T) {
	m, cols := sampleMatrix(120)
	s := NewRobustScaler()
	scaled, err := s.FitTransform(m, cols)
	if err != nil {
		t.Fatalf("fit transform: %v", err)
	}

	for i, row := range scaled {
		for j, v := range row {
			back, err := s.InverseValue(j, v)
			if err != nil {
				t.Fatalf("inverse: %v", err)
			}
			if math.Abs(back-m[i][j]) > 1e-6 {
				t.Fatalf("round trip row %d col %d: got %v, want %v", i, j, back, m[i][j])
			}
		}
	}
}

func TestRobustScalerTransformBeforeFit(t *testing.T) {
	s := NewRobustScaler()
	if _, err := s.Transform([][]float64{{1, 2, 3}}); !errors.Is(err, models.ErrScaling) {
		t.Fatalf("expected ErrScaling, got %v", err)
	}
	if _, err := s.InverseValue(0, 1); !errors.Is(err, models.ErrScaling) {
		t.Fatalf("expected ErrScaling on inverse, got %v", err)
	}
}

func TestRobustScalerRejectsNonFinite(t *testing.T) {
	m, cols := sampleMatrix(50)
	m[10][1] = math.NaN()
	s := NewRobustScaler()
	if _, err := s.FitTransform(m, cols); !errors.Is(err, models.ErrScaling) {
		t.Fatalf("expected ErrScaling, got %v", err)
	}
}

func TestRobustScalerConstantColumn(t *testing.T) {
	cols := []string{"close", "flat"}
	m := make([][]float64, 40)
	for i := range m {
		m[i] = []float64{float64(i + 1), 7}
	}
	s := NewRobustScaler()
	scaled, err := s.FitTransform(m, cols)
	if err != nil {
		t.Fatalf("fit transform: %v", err)
	}
	// IQR of a constant column collapses to 1, so the column centers to zero.
	for i, row := range scaled {
		if row[1] != 0 {
			t.Fatalf("row %d: constant column scaled to %v, want 0", i, row[1])
		}
	}
}

func TestRobustScalerColumnIndex(t *testing.T) {
	m, cols := sampleMatrix(40)
	s := NewRobustScaler()
	if err := s.Fit(m, cols); err != nil {
		t.Fatalf("fit: %v", err)
	}
	if got := s.ColumnIndex("close"); got != 0 {
		t.Fatalf("close index: got %d, want 0", got)
	}
	if got := s.ColumnIndex("missing"); got != -1 {
		t.Fatalf("missing index: got %d, want -1", got)
	}
}
