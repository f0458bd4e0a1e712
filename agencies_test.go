package blindspot

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestLeftRightLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value float64
		want  string
	}{
		{0.9, "right"},
		{0.4, "right"},
		{0.39, "centre right"},
		{0.2, "centre right"},
		{0.19, "centre"},
		{0.0, "centre"},
		{-0.19, "centre"},
		{-0.2, "centre left"},
		{-0.39, "centre left"},
		{-0.4, "left"},
		{-1.0, "left"},
		{math.NaN(), "unmeasured"},
	}
	for _, tt := range tests {
		if got := leftRightLabel(tt.value); got != tt.want {
			t.Fatalf("leftRightLabel(%f) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestLoadAgencies(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "agencies.csv")
	csv := `url;owner;reach;left_right
www.alpha.example;Alpha Media;4.0;-0.3
www.beta.example;Alpha Media;2.0;0.5
www.gamma.example;Gamma Group;1.5;
`
	if err := os.WriteFile(path, []byte(csv), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	agencies, err := LoadAgencies(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(agencies) != 3 {
		t.Fatalf("expected 3 agencies, got %d", len(agencies))
	}

	alpha := agencies["www.alpha.example"]
	if alpha.Owner != "Alpha Media" || alpha.Reach != 4.0 {
		t.Fatalf("unexpected alpha row: %+v", alpha)
	}
	if alpha.LeftRightLabel != "centre left" {
		t.Fatalf("expected alpha to be centre left, got %q", alpha.LeftRightLabel)
	}
	if alpha.OwnerReach != 6.0 || alpha.OwnerAgencies != 2 {
		t.Fatalf("wrong owner aggregates: reach %f, agencies %d", alpha.OwnerReach, alpha.OwnerAgencies)
	}

	beta := agencies["www.beta.example"]
	if beta.LeftRightLabel != "right" {
		t.Fatalf("expected beta to be right, got %q", beta.LeftRightLabel)
	}
	if beta.OwnerReach != 6.0 || beta.OwnerAgencies != 2 {
		t.Fatalf("wrong owner aggregates for beta: reach %f, agencies %d", beta.OwnerReach, beta.OwnerAgencies)
	}

	gamma := agencies["www.gamma.example"]
	if !math.IsNaN(gamma.LeftRight) {
		t.Fatalf("expected empty left_right to parse as NaN, got %f", gamma.LeftRight)
	}
	if gamma.LeftRightLabel != "unmeasured" {
		t.Fatalf("expected gamma to be unmeasured, got %q", gamma.LeftRightLabel)
	}
	if gamma.OwnerAgencies != 1 {
		t.Fatalf("expected one Gamma Group agency, got %d", gamma.OwnerAgencies)
	}
}

func TestLoadAgenciesErrors(t *testing.T) {
	t.Parallel()

	if _, err := LoadAgencies(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Fatal("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.csv")
	if err := os.WriteFile(path, []byte("url;owner;reach\nx;y;1.0\n"), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	if _, err := LoadAgencies(path); err == nil {
		t.Fatal("expected error for missing left_right column")
	}
}
