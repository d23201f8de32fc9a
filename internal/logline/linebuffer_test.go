package logline

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLineBuffer_EmptyDrain(t *testing.T) {
	b := NewLineBuffer()
	lines := b.GetLines()
	require.NotNil(t, lines)
	require.Empty(t, lines)
	require.True(t, b.Empty())
}

func TestLineBuffer_DrainAll(t *testing.T) {
	b := NewLineBuffer()
	b.Add(Line{Message: "a"})
	b.Add(Line{Message: "b"})
	require.Equal(t, 2, b.Len())

	lines := b.GetLines()
	require.Equal(t, []string{"a", "b"}, messages(lines))
	require.True(t, b.Empty())
	require.Empty(t, b.GetLines())
}

func TestLineBuffer_Notify(t *testing.T) {
	b := NewLineBuffer()
	b.Add(Line{Message: "a"})
	b.Add(Line{Message: "b"})

	select {
	case <-b.Notify():
	case <-time.After(time.Second):
		t.Fatal("expected a readiness signal")
	}

	select {
	case <-b.Notify():
		t.Fatal("signals should coalesce")
	default:
	}
}

func TestLineBuffer_ConcurrentProducers(t *testing.T) {
	const producers = 8
	const perProducer = 2000

	b := NewLineBuffer()
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				b.Add(Line{PID: p, Message: fmt.Sprint(i)})
			}
		}(p)
	}

	var drained Lines
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
loop:
	for {
		select {
		case <-done:
			break loop
		default:
			drained = append(drained, b.GetLines()...)
		}
	}
	drained = append(drained, b.GetLines()...)

	require.Len(t, drained, producers*perProducer)
	next := make([]int, producers)
	for _, l := range drained {
		require.Equal(t, fmt.Sprint(next[l.PID]), l.Message, "producer %d out of order", l.PID)
		next[l.PID]++
	}
	for p := range next {
		require.Equal(t, perProducer, next[p])
	}
}

func TestTimer_Monotonic(t *testing.T) {
	timer := NewTimer()
	a := timer.Get()
	time.Sleep(2 * time.Millisecond)
	b := timer.Get()
	require.Greater(t, b, a)

	timer.Reset()
	require.Less(t, timer.Get(), b)
}

func TestSinkFunc(t *testing.T) {
	var got Lines
	var s Sink = SinkFunc(func(lines Lines) { got = append(got, lines...) })
	s.Consume(Lines{{Message: "x"}})
	require.Equal(t, []string{"x"}, messages(got))
}

func TestLineBuffer_Wake(t *testing.T) {
	b := NewLineBuffer()
	b.Wake()
	b.Wake()

	select {
	case <-b.Notify():
	default:
		t.Fatal("expected a pending signal")
	}
	require.True(t, b.Empty())
}
