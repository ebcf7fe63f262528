package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccrualPoints(t *testing.T) {
	tests := []struct {
		totalCents int64
		points     int64
	}{
		{10000, 500}, // 100.00 -> 5.00 worth of points
		{100, 5},
		{19, 0},  // below one point, floored
		{20, 1},
		{1, 0},
		{0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.points, AccrualPoints(tt.totalCents), "total %d", tt.totalCents)
	}
}
