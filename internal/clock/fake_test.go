package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeAdvanceMovesNow(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	fake := NewFake(start)

	fake.Advance(1500 * time.Millisecond)
	assert.Equal(t, start.Add(1500*time.Millisecond), fake.Now())
}

func TestFakeTickerFiresOncePerAdvance(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	fake := NewFake(start)
	ticker := fake.NewTicker(100 * time.Millisecond)

	fake.Advance(50 * time.Millisecond)
	select {
	case <-ticker.C():
		t.Fatal("ticker fired before its deadline")
	default:
	}

	fake.Advance(time.Second)
	select {
	case at := <-ticker.C():
		assert.Equal(t, start.Add(1050*time.Millisecond), at)
	default:
		t.Fatal("ticker did not fire after its deadline")
	}

	// Missed deadlines collapse into the single tick above.
	select {
	case <-ticker.C():
		t.Fatal("ticker queued more than one tick")
	default:
	}
}

func TestFakeTickerStop(t *testing.T) {
	fake := NewFake(time.Now())
	ticker := fake.NewTicker(time.Millisecond)
	require.Equal(t, 1, fake.Tickers())

	ticker.Stop()
	fake.Advance(time.Second)

	assert.Equal(t, 0, fake.Tickers())
	select {
	case <-ticker.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestFakeTickerRejectsNonPositiveInterval(t *testing.T) {
	fake := NewFake(time.Now())
	assert.Panics(t, func() { fake.NewTicker(0) })
}
