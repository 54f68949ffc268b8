package listing

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiveRecomputesOnChanges(t *testing.T) {
	live := NewLive(newRowEngine(), LiveConfig[row]{})
	items := rows(5)
	live.SetItems(items)
	assert.Equal(t, items, live.Result())

	live.SetSearch("sujeto 3")
	assert.Equal(t, []row{items[2]}, live.Result())
	assert.True(t, live.HasActiveFilters())

	live.ClearFilters()
	assert.Equal(t, items, live.Result())
	assert.False(t, live.HasActiveFilters())
}

func TestLiveDebouncesEdits(t *testing.T) {
	var calls int32
	live := NewLive(newRowEngine(), LiveConfig[row]{
		Delay:    20 * time.Millisecond,
		OnChange: func([]row) { atomic.AddInt32(&calls, 1) },
	})
	defer live.Close()
	live.SetItems(rows(5))
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))

	live.SetSearch("s")
	live.SetSearch("su")
	live.SetSearch("sujeto 1")

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Len(t, live.Result(), 1)
}

func TestLiveFlush(t *testing.T) {
	live := NewLive(newRowEngine(), LiveConfig[row]{Delay: time.Hour})
	defer live.Close()
	live.SetItems(rows(3))
	live.SetFilter("edad", "18-18")
	assert.Len(t, live.Result(), 3)

	live.Flush()
	assert.Len(t, live.Result(), 1)
}

func TestLiveStaleLoadIsDiscarded(t *testing.T) {
	live := NewLive(newRowEngine(), LiveConfig[row]{})
	slow := live.BeginLoad()
	fast := live.BeginLoad()

	assert.True(t, live.CompleteLoad(fast, rows(2)))
	assert.False(t, live.CompleteLoad(slow, rows(9)))
	assert.Len(t, live.Result(), 2)
}

func TestThrottler(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	th := NewThrottler(time.Second)
	th.now = func() time.Time { return now }

	assert.True(t, th.Allow())
	assert.False(t, th.Do(func() {}))
	now = now.Add(time.Second)
	ran := false
	assert.True(t, th.Do(func() { ran = true }))
	assert.True(t, ran)
}
