package core

import "testing"

func TestTargetKinds(t *testing.T) {
	tests := []struct {
		target Target
		kind   TargetKind
		str    string
	}{
		{ImageTarget{Path: "/img/common/ok.png", Threshold: 0.7}, TargetImage, "Template(/img/common/ok.png, threshold=0.70)"},
		{Point{X: 10, Y: 20}, TargetPoint, "(10, 20)"},
		{Region{X1: 1, Y1: 2, X2: 3, Y2: 4}, TargetRegion, "(1, 2, 3, 4)"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := tt.target.Kind(); got != tt.kind {
				t.Errorf("Kind() = %q, want %q", got, tt.kind)
			}
			if got := tt.target.String(); got != tt.str {
				t.Errorf("String() = %q, want %q", got, tt.str)
			}
		})
	}
}

func TestRegion_Center(t *testing.T) {
	r := Region{X1: 100, Y1: 200, X2: 300, Y2: 401}
	c := r.Center()
	if c.X != 200 || c.Y != 300 {
		t.Errorf("Center() = %v, want (200, 300)", c)
	}
}
