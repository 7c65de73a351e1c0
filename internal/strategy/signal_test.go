package strategy

import (
	"errors"
	"math"
	"testing"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

const eps = 1e-9

func approx(a, b float64) bool { return math.Abs(a-b) < eps }

func TestLogSpreadSymmetry(t *testing.T) {
	a := []float64{10, 20, 5.5, 0.031, 1200}
	b := []float64{2, 3, 7, 0.5, 1199}

	ab, err := LogSpread(a, b)
	if err != nil {
		t.Fatal(err)
	}
	ba, err := LogSpread(b, a)
	if err != nil {
		t.Fatal(err)
	}
	for i := range ab {
		if !approx(ab[i], -ba[i]) {
			t.Errorf("index %d: log(A/B)=%v, log(B/A)=%v", i, ab[i], ba[i])
		}
	}
}

func TestLogSpreadAlignsOnMostRecent(t *testing.T) {
	a := []float64{1, 2, 4, 8, 16}
	b := []float64{2, 2, 2}

	got, err := LogSpread(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if !approx(got[0], math.Log(2)) || !approx(got[2], math.Log(8)) {
		t.Fatalf("spread = %v", got)
	}
}

func TestLogSpreadInvalidPrice(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
	}{
		{"zero in a", []float64{1, 0, 2}, []float64{1, 1, 1}},
		{"negative in b", []float64{1, 1, 1}, []float64{1, -3, 1}},
		{"nan in a", []float64{1, math.NaN()}, []float64{1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LogSpread(tt.a, tt.b); !errors.Is(err, domain.ErrInvalidPrice) {
				t.Fatalf("expected ErrInvalidPrice, got %v", err)
			}
		})
	}
}

func TestLastPriceRatio(t *testing.T) {
	r, err := LastPriceRatio([]float64{3, 6}, []float64{1, 2})
	if err != nil || !approx(r, 3) {
		t.Fatalf("ratio = %v, err = %v", r, err)
	}
	if _, err := LastPriceRatio(nil, []float64{1}); !errors.Is(err, domain.ErrInsufficientHistory) {
		t.Fatalf("expected ErrInsufficientHistory, got %v", err)
	}
}

func sine(n, period int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * float64(i) / float64(period))
	}
	return out
}

func TestRollingZScoreUndefinedHead(t *testing.T) {
	series := sine(60, 17)
	for i := range series {
		series[i] += 0.01 * float64(i)
	}
	const w = 20
	z := RollingZScore(series, w)
	if len(z) != len(series) {
		t.Fatalf("len = %d", len(z))
	}
	for i, v := range z {
		if i < w-1 && !math.IsNaN(v) {
			t.Errorf("z[%d] = %v, want NaN", i, v)
		}
		if i >= w-1 && (math.IsNaN(v) || math.IsInf(v, 0)) {
			t.Errorf("z[%d] = %v, want finite", i, v)
		}
	}

	latest, err := LatestZScore(series, w)
	if err != nil {
		t.Fatal(err)
	}
	if !approx(latest, z[len(z)-1]) {
		t.Fatalf("latest %v != rolling tail %v", latest, z[len(z)-1])
	}
}

func TestLatestZScoreKnownValue(t *testing.T) {
	z, err := LatestZScore([]float64{1, 2, 3, 4, 5}, 5)
	if err != nil {
		t.Fatal(err)
	}
	want := 2 / math.Sqrt(2.5)
	if !approx(z, want) {
		t.Fatalf("z = %v, want %v", z, want)
	}
}

func TestLatestZScoreErrors(t *testing.T) {
	if _, err := LatestZScore(sine(10, 5), 20); !errors.Is(err, domain.ErrInsufficientHistory) {
		t.Fatalf("expected ErrInsufficientHistory, got %v", err)
	}
	flat := make([]float64, 30)
	for i := range flat {
		flat[i] = 0.25
	}
	if _, err := LatestZScore(flat, 20); !errors.Is(err, domain.ErrDegenerateSpread) {
		t.Fatalf("expected ErrDegenerateSpread, got %v", err)
	}
	for _, v := range RollingZScore(flat, 20) {
		if !math.IsNaN(v) {
			t.Fatalf("constant series produced %v", v)
		}
	}
}

func TestEstimateReversionSine(t *testing.T) {
	r := EstimateReversion(sine(101, 20))
	if !r.MeanReverting() {
		t.Fatalf("sine spread lambda = %v, want < 0", r.Lambda)
	}
	if r.Samples != 100 {
		t.Fatalf("samples = %d", r.Samples)
	}
	if !approx(r.HalfLife, -math.Ln2/r.Lambda) || r.HalfLife <= 0 {
		t.Fatalf("half-life = %v", r.HalfLife)
	}
}

func TestEstimateReversionTrending(t *testing.T) {
	s := make([]float64, 100)
	for i := range s {
		s[i] = 0.001 * float64(i*i)
	}
	r := EstimateReversion(s)
	if r.MeanReverting() {
		t.Fatalf("accelerating spread lambda = %v, want >= 0", r.Lambda)
	}
	if r.HalfLife != 0 {
		t.Fatalf("half-life should be unset, got %v", r.HalfLife)
	}
}

func TestEstimateReversionDegenerate(t *testing.T) {
	short := sine(10, 4) // 9 usable pairs
	if r := EstimateReversion(short); r.Lambda != 0 || r.MeanReverting() {
		t.Fatalf("short series lambda = %v", r.Lambda)
	}
	if r := EstimateReversion(nil); r.Lambda != 0 || r.Samples != 0 {
		t.Fatalf("empty series = %+v", r)
	}
	flat := make([]float64, 40)
	if r := EstimateReversion(flat); r.Lambda != 0 {
		t.Fatalf("constant series lambda = %v", r.Lambda)
	}
}

func TestEstimateReversionExactFit(t *testing.T) {
	// s[t+1] - s[t] = 0.5 - 0.3*s[t]
	s := make([]float64, 25)
	for i := 1; i < len(s); i++ {
		s[i] = s[i-1] + 0.5 - 0.3*s[i-1]
	}
	r := EstimateReversion(s)
	if math.Abs(r.Lambda-(-0.3)) > 1e-6 {
		t.Fatalf("lambda = %v, want -0.3", r.Lambda)
	}
	if math.Abs(r.HalfLife-math.Ln2/0.3) > 1e-4 {
		t.Fatalf("half-life = %v", r.HalfLife)
	}
}
