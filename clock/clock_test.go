package clock_test

import (
	"testing"
	"time"

	"github.com/bsv-blockchain/fullnode/clock"
	"github.com/stretchr/testify/assert"
)

func TestFakeAdvanceFiresAfter(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewFake(start)

	ch := c.After(5 * time.Second)

	select {
	case <-ch:
		t.Fatal("After fired before deadline")
	default:
	}

	c.Advance(5 * time.Second)

	select {
	case fired := <-ch:
		assert.Equal(t, start.Add(5*time.Second), fired)
	default:
		t.Fatal("After did not fire at deadline")
	}
}

func TestFakeTickerFiresRepeatedly(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewFake(start)

	ticker := c.NewTicker(time.Second)

	c.Advance(3 * time.Second)

	count := 0
loop:
	for {
		select {
		case <-ticker.C():
			count++
		default:
			break loop
		}
	}

	assert.GreaterOrEqual(t, count, 1)

	ticker.Stop()
}

func TestFakeSince(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewFake(start)

	c.Advance(10 * time.Second)
	assert.Equal(t, 10*time.Second, c.Since(start))
}
