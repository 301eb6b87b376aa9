package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	require.True(t, ok)
	assert.Equal(t, s, got.UTC().Format(time.RFC3339))
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	require.True(t, ok)
	assert.Equal(t, ts, got.Unix())
}

func TestParseTimeDateOnly(t *testing.T) {
	got, ok := ParseTime("2024-03-15")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), got)
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	assert.True(t, ParseTimeDefault("", def).Equal(def))
	assert.True(t, ParseTimeDefault("garbage", def).Equal(def))
}

func TestNextBusinessDaysSkipsWeekend(t *testing.T) {
	fri := time.Date(2024, 6, 7, 15, 30, 0, 0, time.UTC)
	got := NextBusinessDays(fri, 3)
	require.Len(t, got, 3)
	assert.Equal(t, time.Monday, got[0].Weekday())
	assert.Equal(t, "2024-06-10", got[0].Format(time.DateOnly))
	assert.Equal(t, "2024-06-12", got[2].Format(time.DateOnly))
	assert.Empty(t, NextBusinessDays(fri, 0))
}

func TestHistoryWindow(t *testing.T) {
	from, to := HistoryWindow(time.Date(2024, 6, 7, 15, 30, 0, 0, time.UTC), 30)
	assert.Equal(t, time.Date(2024, 6, 7, 0, 0, 0, 0, time.UTC), to)
	assert.Equal(t, time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC), from)
}
