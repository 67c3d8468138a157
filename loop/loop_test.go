package loop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gotest.tools/assert"
)

func TestManualFramesRunOncePerStep(t *testing.T) {
	m := NewManual()
	var ran []int
	var again func(time.Time)
	again = func(time.Time) {
		ran = append(ran, 2)
		m.RequestFrame(again)
	}
	m.RequestFrame(func(time.Time) { ran = append(ran, 1) })
	m.RequestFrame(again)

	assert.Equal(t, 2, m.Step(time.Time{}))
	assert.DeepEqual(t, []int{1, 2}, ran)
	assert.Equal(t, 1, m.Pending())

	assert.Equal(t, 1, m.Step(time.Time{}))
	assert.DeepEqual(t, []int{1, 2, 2}, ran)
}

func TestManualCancel(t *testing.T) {
	m := NewManual()
	fired := false
	id := m.RequestFrame(func(time.Time) { fired = true })
	m.CancelFrame(id)
	m.CancelFrame(id)
	m.CancelFrame(12345)
	assert.Equal(t, 0, m.Step(time.Time{}))
	assert.Assert(t, !fired)
}

func TestLoopPostOrderAndFrames(t *testing.T) {
	l := New(200)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	var order []int
	go func() {
		err := l.Run(ctx)
		require.ErrorIs(t, err, context.Canceled)
		close(done)
	}()

	frames := make(chan time.Time, 1)
	for i := 0; i < 100; i++ {
		i := i
		l.Post(func() { order = append(order, i) })
	}
	l.Post(func() {
		l.RequestFrame(func(now time.Time) { frames <- now })
	})

	select {
	case <-frames:
	case <-time.After(2 * time.Second):
		t.Fatal("frame never fired")
	}
	cancel()
	<-done

	require.Len(t, order, 100)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestLoopCancelledFrameNeverFires(t *testing.T) {
	l := New(500)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	fired := false
	id := l.RequestFrame(func(time.Time) { fired = true })
	l.CancelFrame(id)
	l.Run(ctx)
	assert.Assert(t, !fired)
	assert.Equal(t, 0, l.Pending())
}
