package phoenix

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/eljojo/phoenix/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyLog fails to dereference the keys in broken.
type flakyLog struct {
	*MemoryLog
	broken map[types.MsgKey]bool
}

func (l *flakyLog) Get(ctx context.Context, key types.MsgKey) (*Message, error) {
	if l.broken[key] {
		return nil, fmt.Errorf("disk on fire")
	}
	return l.MemoryLog.Get(ctx, key)
}

// startProcessor runs p until the test ends.
func startProcessor(t *testing.T, p *Processor) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitDrained(t *testing.T, p *Processor) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.WaitDrained(ctx))
}

func TestProcessor_AppliesInLogOrder(t *testing.T) {
	log := NewMemoryLog()
	p := NewProcessor(log, NewState(alice), NewEventBus())

	var seen []string
	p.Handle("note", func(st *State, msg *Message) ([]PostEvent, error) {
		seen = append(seen, msg.Content.Text)
		return nil, nil
	})

	for i := 0; i < 5; i++ {
		_, err := log.Append(context.Background(), bob, Content{Type: "note", Text: fmt.Sprint(i)})
		require.NoError(t, err)
	}
	startProcessor(t, p)
	waitDrained(t, p)

	// appended while tailing
	_, err := log.Append(context.Background(), bob, Content{Type: "note", Text: "5"})
	require.NoError(t, err)
	waitDrained(t, p)

	assert.Equal(t, []string{"0", "1", "2", "3", "4", "5"}, seen)
	assert.Equal(t, uint64(6), p.Applied())
}

func TestProcessor_FailuresDoNotHaltTheStream(t *testing.T) {
	log := NewMemoryLog()
	state := NewState(alice)
	p := NewProcessor(log, state, NewEventBus())
	metrics := NewMetrics(prometheus.NewRegistry())
	p.SetMetrics(metrics)

	var (
		failures []types.LogKey
		mu       sync.Mutex
	)
	p.OnFailure = func(err error, lk types.LogKey, msg *Message) {
		mu.Lock()
		failures = append(failures, lk)
		mu.Unlock()
	}
	p.Handle("boom", func(st *State, msg *Message) ([]PostEvent, error) {
		panic("kaboom")
	})
	p.Handle("oops", func(st *State, msg *Message) ([]PostEvent, error) {
		return nil, errors.New("nope")
	})

	ctx := context.Background()
	boom, _ := log.Append(ctx, bob, Content{Type: "boom"})
	oops, _ := log.Append(ctx, bob, Content{Type: "oops"})
	_, _ = log.Append(ctx, bob, Content{Type: TypePost, Text: "still here"})

	startProcessor(t, p)
	waitDrained(t, p)

	mu.Lock()
	assert.Equal(t, []types.LogKey{boom, oops}, failures)
	mu.Unlock()

	assert.Equal(t, 1, state.posts.Len(), "messages after a failure are still applied")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Failures.WithLabelValues("boom")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Failures.WithLabelValues("oops")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Processed.WithLabelValues(TypePost)))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.Pending))
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.AppliedSeq))
}

func TestProcessor_DereferenceFailureIsSkipped(t *testing.T) {
	mem := NewMemoryLog()
	log := &flakyLog{MemoryLog: mem, broken: map[types.MsgKey]bool{}}
	state := NewState(alice)
	p := NewProcessor(log, state, NewEventBus())
	metrics := NewMetrics(prometheus.NewRegistry())
	p.SetMetrics(metrics)

	ctx := context.Background()
	bad, _ := mem.Append(ctx, bob, Content{Type: TypePost, Text: "lost"})
	log.broken[bad.Key] = true
	good, _ := mem.Append(ctx, bob, Content{Type: TypePost, Text: "kept"})

	startProcessor(t, p)
	waitDrained(t, p)

	assert.False(t, state.posts.Contains(bad.Key))
	assert.True(t, state.posts.Contains(good.Key))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.DerefFailures))
}

func TestProcessor_DuplicatesAreSkipped(t *testing.T) {
	log := NewMemoryLog()
	p := NewProcessor(log, NewState(alice), NewEventBus())
	metrics := NewMetrics(prometheus.NewRegistry())
	p.SetMetrics(metrics)

	calls := 0
	p.Handle("note", func(st *State, msg *Message) ([]PostEvent, error) {
		calls++
		return nil, nil
	})

	ctx := context.Background()
	lk, _ := log.Append(ctx, bob, Content{Type: "note"})
	msg, err := log.Get(ctx, lk.Key)
	require.NoError(t, err)
	_, err = log.Import(ctx, *msg)
	require.NoError(t, err)

	startProcessor(t, p)
	waitDrained(t, p)

	assert.Equal(t, 1, calls)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Duplicates))
	assert.Equal(t, uint64(2), p.Applied())
}

func TestProcessor_WaitersHonorContext(t *testing.T) {
	log := NewMemoryLog()
	p := NewProcessor(log, NewState(alice), NewEventBus())
	lk, _ := log.Append(context.Background(), bob, Content{Type: TypePost, Text: "hi"})

	// nothing is running, so nothing gets applied
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.WaitIndexed(ctx, lk), context.DeadlineExceeded)
	assert.ErrorIs(t, p.WaitDrained(ctx), context.DeadlineExceeded)

	startProcessor(t, p)
	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	assert.NoError(t, p.WaitIndexed(ctx2, lk))
}

func TestProcessor_EmptyLogIsDrained(t *testing.T) {
	p := NewProcessor(NewMemoryLog(), NewState(alice), NewEventBus())
	startProcessor(t, p)
	waitDrained(t, p)
	assert.Equal(t, uint64(0), p.Applied())
}

func TestEvents_NewPostsInOrder(t *testing.T) {
	f := testNode(t, alice)
	sub := f.query().Events()
	defer sub.Close()

	p1 := f.post(bob, 10, "one")
	f.reply(charlie, 20, "a reply", p1.Key)
	p2 := f.post(charlie, 5, "two")
	f.log.Import(context.Background(), *p1)
	f.sync()

	var got []types.MsgKey
	for len(got) < 2 {
		select {
		case ev := <-sub.C:
			assert.Equal(t, TypePost, ev.Type)
			got = append(got, ev.Post.Key)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for events, got %v", got)
		}
	}
	assert.Equal(t, []types.MsgKey{p1.Key, p2.Key}, got)

	select {
	case ev := <-sub.C:
		t.Errorf("unexpected extra event for %s", ev.Post.Key)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEvents_SlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewEventBus()
	slow := bus.Subscribe()
	fast := bus.Subscribe()

	for i := 0; i < 100; i++ {
		bus.Publish(PostEvent{Type: TypePost, Post: Message{Key: types.MsgKey(fmt.Sprint(i))}})
	}

	for i := 0; i < 100; i++ {
		select {
		case ev := <-fast.C:
			assert.Equal(t, types.MsgKey(fmt.Sprint(i)), ev.Post.Key)
		case <-time.After(5 * time.Second):
			t.Fatal("fast subscriber starved")
		}
	}

	first := <-slow.C
	assert.Equal(t, types.MsgKey("0"), first.Post.Key)

	bus.Close()
	for range slow.C {
	}
	for range fast.C {
	}

	late := bus.Subscribe()
	_, open := <-late.C
	assert.False(t, open, "subscribing to a closed bus yields a closed channel")
}
