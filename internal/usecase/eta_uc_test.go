package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimatedWait(t *testing.T) {
	tests := []struct {
		name    string
		rank    int
		average int
		want    int
	}{
		{"first in line", 1, 15, 15},
		{"third in line", 3, 15, 45},
		{"zero rank", 0, 15, 0},
		{"negative rank", -1, 15, 0},
		{"zero average", 4, 0, 0},
		{"negative average", 4, -10, 0},
		{"long queue", 20, 30, 600},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimatedWait(tt.rank, tt.average))
		})
	}
}
