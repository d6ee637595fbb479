package phoenix

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eljojo/phoenix/types"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a message key is not in the log.
var ErrNotFound = errors.New("message not found")

// Log is the append-only message store the processor indexes.
type Log interface {
	// ReplayThenTail streams every committed entry in commit order, then every
	// new entry as it is appended, until ctx is done.
	ReplayThenTail(ctx context.Context) <-chan types.LogKey

	// Get dereferences a message key.
	Get(ctx context.Context, key types.MsgKey) (*Message, error)

	// Append commits new content authored by author.
	Append(ctx context.Context, author types.FeedID, content Content) (types.LogKey, error)

	// Head is the sequence of the last committed entry (0 when empty).
	Head() uint64
}

// nowMillis is the clock used to stamp appended messages.
var nowMillis = func() int64 {
	return time.Now().UnixMilli()
}

// MemoryLog is an in-process Log. Nothing survives a restart.
type MemoryLog struct {
	entries []types.LogKey
	msgs    map[types.MsgKey]*Message
	feeds   map[types.FeedID]int64 // last sequence per author
	wake    chan struct{}
	mu      sync.RWMutex
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		msgs:  make(map[types.MsgKey]*Message),
		feeds: make(map[types.FeedID]int64),
		wake:  make(chan struct{}),
	}
}

// Append stamps content with the author's next sequence and the current time.
func (l *MemoryLog) Append(ctx context.Context, author types.FeedID, content Content) (types.LogKey, error) {
	if err := ctx.Err(); err != nil {
		return types.LogKey{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	seq := l.feeds[author] + 1
	ts := nowMillis()
	msg := &Message{
		Key:       ComputeKey(author, seq, ts, content),
		Author:    author,
		Sequence:  seq,
		Timestamp: ts,
		Content:   content,
	}
	return l.commitLocked(msg), nil
}

// Import appends an already-formed message verbatim. The key is computed if
// missing. Importing the same message twice yields two log entries with the
// same key, as a replicated log may.
func (l *MemoryLog) Import(ctx context.Context, msg Message) (types.LogKey, error) {
	if err := ctx.Err(); err != nil {
		return types.LogKey{}, err
	}
	if msg.Key == "" {
		msg.Key = ComputeKey(msg.Author, msg.Sequence, msg.Timestamp, msg.Content)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.commitLocked(&msg), nil
}

func (l *MemoryLog) commitLocked(msg *Message) types.LogKey {
	if msg.Sequence > l.feeds[msg.Author] {
		l.feeds[msg.Author] = msg.Sequence
	}
	lk := types.LogKey{Seq: uint64(len(l.entries)) + 1, Key: msg.Key}
	l.entries = append(l.entries, lk)
	l.msgs[msg.Key] = msg

	close(l.wake)
	l.wake = make(chan struct{})
	return lk
}

func (l *MemoryLog) Get(ctx context.Context, key types.MsgKey) (*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	msg, ok := l.msgs[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	cp := *msg
	return &cp, nil
}

func (l *MemoryLog) Head() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.entries))
}

func (l *MemoryLog) ReplayThenTail(ctx context.Context) <-chan types.LogKey {
	return tail(ctx, func(after uint64) ([]types.LogKey, <-chan struct{}, error) {
		l.mu.RLock()
		defer l.mu.RUnlock()
		if after >= uint64(len(l.entries)) {
			return nil, l.wake, nil
		}
		batch := make([]types.LogKey, len(l.entries)-int(after))
		copy(batch, l.entries[after:])
		return batch, l.wake, nil
	})
}

// tailRetryDelay is how long tail waits before reading again after a failed
// read.
var tailRetryDelay = 500 * time.Millisecond

// tail drives a replay-then-tail stream over a log that can list the entries
// after a sequence and hand out a channel closed on the next append.
func tail(ctx context.Context, since func(after uint64) ([]types.LogKey, <-chan struct{}, error)) <-chan types.LogKey {
	out := make(chan types.LogKey)
	go func() {
		defer close(out)
		var pos uint64
		for {
			batch, wake, err := since(pos)
			if err != nil {
				logrus.WithError(err).Warnf("failed to read log entries after %d, retrying", pos)
				select {
				case <-time.After(tailRetryDelay):
				case <-ctx.Done():
					return
				}
				continue
			}
			for _, lk := range batch {
				select {
				case out <- lk:
					pos = lk.Seq
				case <-ctx.Done():
					return
				}
			}
			if len(batch) > 0 {
				continue
			}
			select {
			case <-wake:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
