package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeHistoryDays(t *testing.T) {
	cases := map[int]int{
		0:     DefaultHistoryDays,
		30:    120,
		730:   730,
		99999: 3650,
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeHistoryDays(in), "in=%d", in)
	}
	assert.True(t, IsValidHistoryDays(TrainingHistoryDays))
	assert.False(t, IsValidHistoryDays(-1))
}
