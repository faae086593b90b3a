package vector

import (
	"math"
	"testing"
)

func TestEuclideanDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"3-4-5", []float32{0, 0}, []float32{3, 4}, 5},
		{"mismatch", []float32{1}, []float32{1, 2}, math.Inf(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EuclideanDistance(tt.a, tt.b)
			if got != tt.want {
				t.Errorf("EuclideanDistance = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecall(t *testing.T) {
	exact := []*VectorResult{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}
	approx := []*VectorResult{{ID: "a"}, {ID: "c"}, {ID: "x"}}
	if got := Recall(approx, exact); got != 0.5 {
		t.Errorf("Recall = %v, want 0.5", got)
	}
	if got := Recall(nil, nil); got != 1 {
		t.Errorf("Recall(empty) = %v, want 1", got)
	}
}
