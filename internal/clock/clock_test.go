package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMockClockAdvanceFiresDueTimers(t *testing.T) {
	start := time.Date(2026, 8, 31, 12, 0, 0, 0, time.Local)
	clk := NewMockClock(start)

	fired := 0
	clk.AfterFunc(10*time.Minute, func() { fired++ })
	clk.AfterFunc(20*time.Minute, func() { fired++ })

	clk.Advance(10 * time.Minute)
	assert.Equal(t, 1, fired)
	assert.Equal(t, start.Add(10*time.Minute), clk.Now())

	clk.Advance(10 * time.Minute)
	assert.Equal(t, 2, fired)
	assert.Zero(t, clk.PendingTimers())
}

func TestMockClockStopPreventsFiring(t *testing.T) {
	clk := NewMockClock(time.Now())

	fired := false
	timer := clk.AfterFunc(time.Minute, func() { fired = true })
	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	clk.Advance(2 * time.Minute)
	assert.False(t, fired)
}

func TestMockClockCallbackMaySchedule(t *testing.T) {
	clk := NewMockClock(time.Now())

	var order []int
	clk.AfterFunc(time.Minute, func() {
		order = append(order, 1)
		clk.AfterFunc(time.Minute, func() { order = append(order, 2) })
	})

	clk.Advance(time.Minute)
	clk.Advance(time.Minute)
	assert.Equal(t, []int{1, 2}, order)
}

func TestMockClockAfterDelivers(t *testing.T) {
	clk := NewMockClock(time.Now())
	ch := clk.After(time.Minute)

	select {
	case <-ch:
		t.Fatal("fired early")
	default:
	}

	clk.Advance(time.Minute)
	select {
	case <-ch:
	default:
		t.Fatal("did not fire")
	}
}

func TestMockClockSetBackwardsDoesNotFire(t *testing.T) {
	start := time.Now()
	clk := NewMockClock(start)

	fired := false
	clk.AfterFunc(time.Minute, func() { fired = true })

	clk.Set(start.Add(-time.Hour))
	assert.False(t, fired)
	assert.Equal(t, start.Add(-time.Hour), clk.Now())
}
