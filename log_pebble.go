package phoenix

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/eljojo/phoenix/types"
	"github.com/sirupsen/logrus"
)

// key layout:
//
//	log:<seq, 8 bytes big endian>  -> message key
//	msg:<message key>              -> message JSON
//	feed:<feed id>                 -> last sequence of that feed (8 bytes)
var (
	logPrefix  = []byte("log:")
	msgPrefix  = []byte("msg:")
	feedPrefix = []byte("feed:")
)

func logEntryKey(seq uint64) []byte {
	k := make([]byte, len(logPrefix)+8)
	copy(k, logPrefix)
	binary.BigEndian.PutUint64(k[len(logPrefix):], seq)
	return k
}

func msgEntryKey(key types.MsgKey) []byte {
	return append(append([]byte{}, msgPrefix...), key...)
}

func feedEntryKey(id types.FeedID) []byte {
	return append(append([]byte{}, feedPrefix...), id...)
}

// PebbleLog is a durable Log stored in a pebble database.
type PebbleLog struct {
	db   *pebble.DB
	head uint64
	wake chan struct{}
	mu   sync.RWMutex
}

// OpenPebbleLog opens (or creates) the log stored in dir.
func OpenPebbleLog(dir string) (*PebbleLog, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble log at %s: %w", dir, err)
	}

	l := &PebbleLog{db: db, wake: make(chan struct{})}
	head, err := l.loadHead()
	if err != nil {
		db.Close()
		return nil, err
	}
	l.head = head
	logrus.Debugf("pebble log opened at %s with %d entries", dir, head)
	return l, nil
}

func (l *PebbleLog) loadHead() (uint64, error) {
	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: logPrefix,
		UpperBound: []byte("log;"),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, iter.Error()
	}
	return binary.BigEndian.Uint64(iter.Key()[len(logPrefix):]), iter.Error()
}

// Close closes the underlying database.
func (l *PebbleLog) Close() error {
	return l.db.Close()
}

func (l *PebbleLog) Head() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.head
}

func (l *PebbleLog) feedSeq(id types.FeedID) (int64, error) {
	v, closer, err := l.db.Get(feedEntryKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()
	return int64(binary.BigEndian.Uint64(v)), nil
}

func (l *PebbleLog) Append(ctx context.Context, author types.FeedID, content Content) (types.LogKey, error) {
	if err := ctx.Err(); err != nil {
		return types.LogKey{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	last, err := l.feedSeq(author)
	if err != nil {
		return types.LogKey{}, fmt.Errorf("read sequence of %s: %w", author, err)
	}
	seq := last + 1
	ts := nowMillis()
	msg := &Message{
		Key:       ComputeKey(author, seq, ts, content),
		Author:    author,
		Sequence:  seq,
		Timestamp: ts,
		Content:   content,
	}
	return l.commitLocked(msg)
}

// Import stores an already-formed message verbatim. Messages whose key is
// already stored are skipped and reported with ok=false.
func (l *PebbleLog) Import(ctx context.Context, msg Message) (lk types.LogKey, ok bool, err error) {
	if err := ctx.Err(); err != nil {
		return types.LogKey{}, false, err
	}
	if msg.Key == "" {
		msg.Key = ComputeKey(msg.Author, msg.Sequence, msg.Timestamp, msg.Content)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	_, closer, err := l.db.Get(msgEntryKey(msg.Key))
	if err == nil {
		closer.Close()
		return types.LogKey{}, false, nil
	}
	if !errors.Is(err, pebble.ErrNotFound) {
		return types.LogKey{}, false, err
	}

	lk, err = l.commitLocked(&msg)
	return lk, err == nil, err
}

func (l *PebbleLog) commitLocked(msg *Message) (types.LogKey, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return types.LogKey{}, fmt.Errorf("encode message: %w", err)
	}
	last, err := l.feedSeq(msg.Author)
	if err != nil {
		return types.LogKey{}, err
	}

	lk := types.LogKey{Seq: l.head + 1, Key: msg.Key}

	batch := l.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(logEntryKey(lk.Seq), []byte(msg.Key), nil); err != nil {
		return types.LogKey{}, err
	}
	if err := batch.Set(msgEntryKey(msg.Key), data, nil); err != nil {
		return types.LogKey{}, err
	}
	if msg.Sequence > last {
		seqBytes := make([]byte, 8)
		binary.BigEndian.PutUint64(seqBytes, uint64(msg.Sequence))
		if err := batch.Set(feedEntryKey(msg.Author), seqBytes, nil); err != nil {
			return types.LogKey{}, err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return types.LogKey{}, fmt.Errorf("commit log entry %d: %w", lk.Seq, err)
	}

	l.head = lk.Seq
	close(l.wake)
	l.wake = make(chan struct{})
	return lk, nil
}

func (l *PebbleLog) Get(ctx context.Context, key types.MsgKey) (*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, closer, err := l.db.Get(msgEntryKey(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	defer closer.Close()

	var msg Message
	if err := json.Unmarshal(v, &msg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &msg, nil
}

func (l *PebbleLog) ReplayThenTail(ctx context.Context) <-chan types.LogKey {
	return tail(ctx, func(after uint64) ([]types.LogKey, <-chan struct{}, error) {
		l.mu.RLock()
		wake := l.wake
		head := l.head
		l.mu.RUnlock()

		if after >= head {
			return nil, wake, nil
		}
		batch, err := l.entriesBetween(after, head)
		return batch, wake, err
	})
}

// entriesBetween returns log entries with after < seq <= upto.
func (l *PebbleLog) entriesBetween(after, upto uint64) ([]types.LogKey, error) {
	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: logEntryKey(after + 1),
		UpperBound: logEntryKey(upto + 1),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []types.LogKey
	for iter.First(); iter.Valid(); iter.Next() {
		out = append(out, types.LogKey{
			Seq: binary.BigEndian.Uint64(iter.Key()[len(logPrefix):]),
			Key: types.MsgKey(append([]byte{}, iter.Value()...)),
		})
	}
	return out, iter.Error()
}

// Each calls fn for every stored message in commit order, stopping at the
// first error.
func (l *PebbleLog) Each(ctx context.Context, fn func(seq uint64, msg *Message) error) error {
	entries, err := l.entriesBetween(0, l.Head())
	if err != nil {
		return fmt.Errorf("list log entries: %w", err)
	}
	for _, lk := range entries {
		msg, err := l.Get(ctx, lk.Key)
		if err != nil {
			return err
		}
		if err := fn(lk.Seq, msg); err != nil {
			return err
		}
	}
	return nil
}
