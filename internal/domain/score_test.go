package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeScore(t *testing.T) {
	tests := []struct {
		name     string
		positive int
		negative int
		want     float64
	}{
		{"no votes yields neutral placeholder", 0, 0, 50.00},
		{"three up one down", 3, 1, 75.00},
		{"all down", 0, 5, 0.00},
		{"all up", 7, 0, 100.00},
		{"two thirds", 2, 1, 66.67},
		{"one third", 1, 2, 33.33},
		{"even split", 10, 10, 50.00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ComputeScore(tt.positive, tt.negative), 0.0001)
		})
	}
}

func TestSameCalendarDay(t *testing.T) {
	chicago, err := loadChicago()
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	// 04:30 UTC and 23:30 UTC the previous day are the same Chicago day.
	a := mustParse(t, "2024-06-02T04:30:00Z")
	b := mustParse(t, "2024-06-01T23:30:00Z")
	assert.True(t, SameCalendarDay(a, b, chicago))

	// Same UTC day can be different Chicago days.
	c := mustParse(t, "2024-06-02T03:00:00Z") // June 1 in Chicago
	d := mustParse(t, "2024-06-02T15:00:00Z") // June 2 in Chicago
	assert.False(t, SameCalendarDay(c, d, chicago))
}
