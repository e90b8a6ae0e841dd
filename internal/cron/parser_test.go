package cron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_ValidExpressions(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"nightly default", "0 3 * * *"},
		{"every hour", "0 * * * *"},
		{"every 5 minutes", "*/5 * * * *"},
		{"weekday business hours", "0 9-17 * * 1-5"},
		{"descriptor", "@daily"},
	}

	p := NewParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched, err := p.Parse(tt.expr, time.UTC)
			require.NoError(t, err)
			assert.NotNil(t, sched)
		})
	}
}

func TestParser_InvalidExpressions(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"empty", ""},
		{"too few fields", "0 3 *"},
		{"seconds field", "0 0 3 * * *"},
		{"out of range hour", "0 25 * * *"},
		{"garbage", "nightly"},
	}

	p := NewParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Parse(tt.expr, time.UTC)
			assert.Error(t, err)
		})
	}
}

func TestSchedule_NextInLocation(t *testing.T) {
	msk := time.FixedZone("MSK", 3*3600)
	sched, err := NewParser().Parse("0 3 * * *", msk)
	require.NoError(t, err)

	after := time.Date(2024, 6, 10, 1, 0, 0, 0, time.UTC) // 04:00 MSK
	next := sched.Next(after)

	assert.True(t, next.Equal(time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC)), "got %v", next)
}
