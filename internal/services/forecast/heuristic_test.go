package forecast

import (
	"testing"

	"FinSight/internal/domain/models"

	"github.com/stretchr/testify/assert"
)

func TestProjectCompoundsDampedChange(t *testing.T) {
	got := Project(100, 2, 3)
	assert.Equal(t, []models.ForecastPoint{
		{Day: 1, Price: 100.7},
		{Day: 2, Price: 101.4},
		{Day: 3, Price: 102.11},
	}, got)
}

func TestProjectClampsDailyMove(t *testing.T) {
	up := Project(100, 20, 2)
	assert.Equal(t, 103.0, up[0].Price)
	assert.Equal(t, 106.09, up[1].Price)

	down := Project(100, -20, 1)
	assert.Equal(t, 97.0, down[0].Price)
}

func TestFlat(t *testing.T) {
	got := Flat(42.123, 2)
	assert.Equal(t, []models.ForecastPoint{{Day: 1, Price: 42.12}, {Day: 2, Price: 42.12}}, got)
	assert.Empty(t, Flat(1, 0))
}
