package watering

import (
	"errors"
	"math"
	"testing"
	"time"
)

const tolerance = 1e-6

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < tolerance
}

func TestPredictVolumeMl(t *testing.T) {
	tests := []struct {
		name     string
		humidity float64
		greenery float64
	}{
		{"dry small plant", 10, 5},
		{"default humidity", 75, 20},
		{"saturated", 100, 0},
		{"out of range inputs", -20, 250},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := 261.83 - 3.13314695*tt.humidity + 2.13997997*tt.greenery
			if got := PredictVolumeMl(tt.humidity, tt.greenery); !floatEquals(got, want) {
				t.Errorf("PredictVolumeMl(%v, %v) = %v, want %v", tt.humidity, tt.greenery, got, want)
			}
		})
	}
}

func TestPredictVolumeMl_Linear(t *testing.T) {
	base := PredictVolumeMl(40, 30)
	if d := PredictVolumeMl(41, 30) - base; !floatEquals(d, -MlPerHumidity) {
		t.Errorf("humidity slope = %v, want %v", d, -MlPerHumidity)
	}
	if d := PredictVolumeMl(40, 31) - base; !floatEquals(d, MlPerGreenery) {
		t.Errorf("greenery slope = %v, want %v", d, MlPerGreenery)
	}
}

func TestValveOpenSeconds_SatisfiesCurve(t *testing.T) {
	for _, vol := range []float64{0, 19.817595, 50, 69.64, 250, 1000} {
		tSec, ok := ValveOpenSeconds(vol)
		if !ok {
			t.Fatalf("ValveOpenSeconds(%v) had no solution", vol)
		}
		residual := ValveA*tSec*tSec + ValveB*tSec + (ValveC0 - vol)
		if math.Abs(residual) > tolerance {
			t.Errorf("volume %v: residual %v for t=%v", vol, residual, tSec)
		}
	}
}

func TestValveOpenSeconds_NoSolution(t *testing.T) {
	// disc < 0 once c0 - volume exceeds b²/4a.
	limit := ValveC0 - ValveB*ValveB/(4*ValveA)

	if _, ok := ValveOpenSeconds(limit - 1); ok {
		t.Errorf("ValveOpenSeconds(%v) should have no solution", limit-1)
	}
	if _, ok := ValveOpenSeconds(limit + 1); !ok {
		t.Errorf("ValveOpenSeconds(%v) should have a solution", limit+1)
	}
}

func TestValveOpenSeconds_NegativeRootNotClamped(t *testing.T) {
	tSec, ok := ValveOpenSeconds(0)
	if !ok {
		t.Fatal("expected a solution for 0 ml")
	}
	if tSec >= 0 {
		t.Errorf("ValveOpenSeconds(0) = %v, want a negative root", tSec)
	}
}

func TestValveOpenSeconds_RoundTrip(t *testing.T) {
	for _, want := range []float64{0, 0.5, 1.35, 5, 12.5, 30} {
		got, ok := ValveOpenSeconds(VolumeForSeconds(want))
		if !ok {
			t.Fatalf("round trip of %v had no solution", want)
		}
		if !floatEquals(got, want) {
			t.Errorf("round trip: got %v, want %v", got, want)
		}
	}
}

func TestComputeDecision_EndToEnd(t *testing.T) {
	d := ComputeDecision(75.0, 20.0)

	if !floatEquals(d.VolumeMl, 261.83-75.0*3.13314695+20.0*2.13997997) {
		t.Errorf("VolumeMl = %v", d.VolumeMl)
	}
	if math.Abs(d.VolumeMl-69.64) > 0.01 {
		t.Errorf("VolumeMl = %v, want about 69.64", d.VolumeMl)
	}
	if !d.InRange {
		t.Fatal("InRange = false, want true")
	}
	if d.ValveOpenSeconds <= 0 || math.IsInf(d.ValveOpenSeconds, 0) || math.IsNaN(d.ValveOpenSeconds) {
		t.Fatalf("ValveOpenSeconds = %v, want positive and finite", d.ValveOpenSeconds)
	}
	if d.ValveOpenSeconds >= 30 {
		t.Errorf("ValveOpenSeconds = %v, want < 30", d.ValveOpenSeconds)
	}
	if math.Abs(d.ValveOpenSeconds-1.35) > 0.01 {
		t.Errorf("ValveOpenSeconds = %v, want about 1.35", d.ValveOpenSeconds)
	}
}

func TestComputeDecision_ClampsNegativeRoot(t *testing.T) {
	// Saturated soil and no leaves predicts less than c0.
	d := ComputeDecision(90, 0)
	if !d.InRange {
		t.Fatal("InRange = false, want true")
	}
	if d.ValveOpenSeconds != 0 {
		t.Errorf("ValveOpenSeconds = %v, want 0", d.ValveOpenSeconds)
	}
}

func TestComputeDecision_OutOfRange(t *testing.T) {
	d := ComputeDecision(2000, 0)
	if d.InRange {
		t.Error("InRange = true, want false")
	}
	if d.ValveOpenSeconds != 0 {
		t.Errorf("ValveOpenSeconds = %v, want 0", d.ValveOpenSeconds)
	}
}

func TestDecision_Duration(t *testing.T) {
	d := Decision{ValveOpenSeconds: 1.5}
	if d.Duration() != 1500*time.Millisecond {
		t.Errorf("Duration() = %v, want 1.5s", d.Duration())
	}
}

func TestPolicy_Apply(t *testing.T) {
	p := Policy{Fallback: 2 * time.Second, Max: 10 * time.Second}

	tests := []struct {
		name    string
		d       Decision
		want    time.Duration
		wantErr error
	}{
		{"in range", Decision{InRange: true, ValveOpenSeconds: 1.5}, 1500 * time.Millisecond, nil},
		{"out of range", Decision{InRange: false, VolumeMl: -4000}, 2 * time.Second, ErrOutOfCalibrationRange},
		{"capped", Decision{InRange: true, ValveOpenSeconds: 45}, 10 * time.Second, ErrDurationCapped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Apply(tt.d)
			if got != tt.want {
				t.Errorf("Apply() = %v, want %v", got, tt.want)
			}
			if tt.wantErr == nil && err != nil {
				t.Errorf("Apply() error = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Apply() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPolicy_NoCap(t *testing.T) {
	p := Policy{}
	got, err := p.Apply(Decision{InRange: true, ValveOpenSeconds: 120})
	if err != nil || got != 120*time.Second {
		t.Errorf("Apply() = %v, %v; want 2m0s, nil", got, err)
	}
}

func TestPolicy_Validate(t *testing.T) {
	if err := DefaultPolicy().Validate(); err != nil {
		t.Errorf("DefaultPolicy().Validate() = %v", err)
	}
	bad := []Policy{
		{Fallback: -time.Second},
		{Max: -time.Second},
		{Fallback: 5 * time.Second, Max: time.Second},
	}
	for _, p := range bad {
		if err := p.Validate(); err == nil {
			t.Errorf("Validate(%+v) = nil, want error", p)
		}
	}
}
