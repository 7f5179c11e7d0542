package gspo

import (
	"strings"
	"testing"
)

func TestDetectCollapseRewardDrop(t *testing.T) {
	cfg := DefaultCollapseConfig()
	cfg.MinSteps = 3
	cfg.Fraction = 0.5

	tests := []struct {
		name    string
		state   TrainingState
		want    bool
		snippet string
	}{
		{
			name: "steep drop from positive best",
			state: TrainingState{
				Step:        8,
				MovingMean:  0.1,
				RecentMeans: []float64{0.6, 0.7, 0.8, 0.5, 0.1},
			},
			want:    true,
			snippet: "window best 0.8000",
		},
		{
			name: "mild drop from positive best",
			state: TrainingState{
				Step:        8,
				MovingMean:  0.6,
				RecentMeans: []float64{0.7, 0.8, 0.75, 0.6},
			},
			want: false,
		},
		{
			name: "steep drop from negative best",
			state: TrainingState{
				Step:        8,
				MovingMean:  -0.9,
				RecentMeans: []float64{-0.2, -0.4, -0.7, -0.9},
			},
			want:    true,
			snippet: "window best -0.2000",
		},
		{
			name: "flat at the penalty floor",
			state: TrainingState{
				Step:        8,
				MovingMean:  -1.0,
				RecentMeans: []float64{-1.0, -1.0, -1.0, -1.0},
			},
			want: false,
		},
		{
			name: "drop from zero best",
			state: TrainingState{
				Step:        8,
				MovingMean:  -0.6,
				RecentMeans: []float64{0.0, -0.3, -0.6},
			},
			want: true,
		},
		{
			name: "suppressed while warming up",
			state: TrainingState{
				Step:        2,
				MovingMean:  0.1,
				RecentMeans: []float64{0.8, 0.1},
			},
			want: false,
		},
		{
			name: "clip saturation streak",
			state: TrainingState{
				Step:               8,
				MovingMean:         0.5,
				RecentMeans:        []float64{0.5, 0.5},
				ClipSaturatedSteps: cfg.ClipSaturationSteps,
			},
			want:    true,
			snippet: "clip saturated",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, got := tt.state.detectCollapse(cfg)
			if got != tt.want {
				t.Fatalf("detectCollapse() = %q, %v, want %v", reason, got, tt.want)
			}
			if tt.snippet != "" && !strings.Contains(reason, tt.snippet) {
				t.Errorf("reason = %q, want it to contain %q", reason, tt.snippet)
			}
		})
	}
}

func TestObserveTrimsWindow(t *testing.T) {
	s := NewTrainingState()
	for i := 0; i < 7; i++ {
		s = s.observe(float64(i), 4)
	}
	if len(s.RecentMeans) != 4 {
		t.Fatalf("len(RecentMeans) = %d, want 4", len(s.RecentMeans))
	}
	if s.Step != 7 {
		t.Errorf("Step = %d, want 7", s.Step)
	}
}
