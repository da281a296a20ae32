package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"FXEngine/pkg/logger"
)

func TestSchedule_Open(t *testing.T) {
	s := DefaultSchedule()
	// 2024-03-04 is a Monday
	day := func(d, h, m int) time.Time { return time.Date(2024, 3, d, h, m, 0, 0, time.UTC) }

	tests := []struct {
		name string
		at   time.Time
		open bool
	}{
		{"monday before open", day(4, 6, 59), false},
		{"monday at open", day(4, 7, 0), true},
		{"monday last minute", day(4, 20, 59), true},
		{"monday at close", day(4, 21, 0), false},
		{"friday afternoon", day(8, 17, 59), true},
		{"friday evening", day(8, 18, 0), false},
		{"saturday", day(9, 12, 0), false},
		{"sunday", day(10, 12, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			open, reason := s.Open(tt.at)
			assert.Equal(t, tt.open, open)
			if tt.open {
				assert.Empty(t, reason)
			} else {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestDayBoundaryWatcher_Coalesces(t *testing.T) {
	c := &clock{t: time.Date(2024, 3, 4, 23, 59, 0, 0, time.UTC)}
	w := NewDayBoundaryWatcher(time.Minute, time.UTC, c.Now, logger.NewNop())

	date := w.Check("2024-03-04")
	assert.Equal(t, "2024-03-04", date)
	assert.Len(t, w.C(), 0)

	c.Advance(2 * time.Minute)
	date = w.Check(date)
	assert.Equal(t, "2024-03-05", date)

	// a second boundary before the first is consumed does not block
	c.Advance(24 * time.Hour)
	date = w.Check(date)
	assert.Equal(t, "2024-03-06", date)
	assert.Len(t, w.C(), 1)

	<-w.C()
	assert.Len(t, w.C(), 0)
}
