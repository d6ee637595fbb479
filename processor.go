package phoenix

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/eljojo/phoenix/types"
	"github.com/sirupsen/logrus"
)

// Handler applies one message's effects to the state. It runs while the
// processor holds the state's write lock and returns the post events it
// produced, which are published once the lock is released.
type Handler func(st *State, msg *Message) ([]PostEvent, error)

// FailureHandler is told about every message whose handler failed.
type FailureHandler func(err error, lk types.LogKey, msg *Message)

func defaultHandlers() map[string]Handler {
	return map[string]Handler{
		TypeInit: func(st *State, msg *Message) ([]PostEvent, error) {
			st.recordInit(msg.Author, msg.Timestamp)
			return nil, nil
		},
		TypeName: func(st *State, msg *Message) ([]PostEvent, error) {
			st.recordNameAssignment(msg.Author, msg.Content)
			return nil, nil
		},
		TypeTrust: func(st *State, msg *Message) ([]PostEvent, error) {
			for _, link := range msg.Content.LinksOf(RelTrusts) {
				if link.Feed == "" {
					logrus.Debugf("trusts link in %s without a feed, skipping", msg.Key)
					continue
				}
				st.recordTrustEdge(msg.Author, link.Feed, link.Value)
			}
			return nil, nil
		},
		TypePost: func(st *State, msg *Message) ([]PostEvent, error) {
			if st.applyPost(msg) {
				return []PostEvent{{Type: TypePost, Post: *msg}}, nil
			}
			return nil, nil
		},
		TypeAdvert: func(st *State, msg *Message) ([]PostEvent, error) {
			st.applyAdvert(msg)
			return nil, nil
		},
	}
}

// Processor consumes the log in commit order and applies every message to
// the state, one message at a time.
type Processor struct {
	log      Log
	state    *State
	bus      *EventBus
	handlers map[string]Handler
	metrics  *Metrics

	// OnFailure, if set, is called after a handler failure has been logged.
	OnFailure FailureHandler

	pending int    // keys received but not yet applied
	applied uint64 // sequence of the last applied log entry
	changed chan struct{}
	mu      sync.Mutex
}

func NewProcessor(log Log, state *State, bus *EventBus) *Processor {
	return &Processor{
		log:      log,
		state:    state,
		bus:      bus,
		handlers: defaultHandlers(),
		changed:  make(chan struct{}),
	}
}

// SetMetrics enables metrics reporting.
func (p *Processor) SetMetrics(m *Metrics) {
	p.metrics = m
}

// Handle registers (or replaces) the handler for a content type.
// Must be called before Run.
func (p *Processor) Handle(contentType string, h Handler) {
	p.handlers[contentType] = h
}

// Run replays the whole log and then follows its tail until ctx is done.
func (p *Processor) Run(ctx context.Context) error {
	logrus.Infof("📚 indexing log for %s (%d entries to replay)", p.state.Me(), p.log.Head())
	for lk := range p.log.ReplayThenTail(ctx) {
		p.process(ctx, lk)
	}
	return ctx.Err()
}

func (p *Processor) process(ctx context.Context, lk types.LogKey) {
	p.begin()
	defer p.finish(lk.Seq)

	msg, err := p.log.Get(ctx, lk.Key)
	if err != nil {
		if ctx.Err() == nil {
			logrus.WithError(err).WithField("log_key", lk.String()).Warn("failed to dereference log entry")
		}
		if p.metrics != nil {
			p.metrics.DerefFailures.Inc()
		}
		return
	}

	handler, ok := p.handlers[msg.Content.Type]
	if !ok {
		return
	}

	events, duplicate, err := p.apply(handler, msg)
	if duplicate {
		logrus.Debugf("skipping already applied message %s", msg.Key)
		if p.metrics != nil {
			p.metrics.Duplicates.Inc()
		}
		return
	}
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"log_key": lk.String(),
			"key":     msg.Key,
			"type":    msg.Content.Type,
			"author":  msg.Author,
		}).Error("failed to process message")
		if p.metrics != nil {
			p.metrics.Failures.WithLabelValues(msg.Content.Type).Inc()
		}
		if p.OnFailure != nil {
			p.OnFailure(err, lk, msg)
		}
	} else if p.metrics != nil {
		p.metrics.Processed.WithLabelValues(msg.Content.Type).Inc()
	}

	for _, ev := range events {
		p.bus.Publish(ev)
	}
}

func (p *Processor) apply(handler Handler, msg *Message) (events []PostEvent, duplicate bool, err error) {
	p.state.mu.Lock()
	defer p.state.mu.Unlock()

	if !p.state.markApplied(msg.Key) {
		return nil, true, nil
	}

	defer func() {
		if r := recover(); r != nil {
			events = nil
			err = fmt.Errorf("handler panic: %v\n%s", r, debug.Stack())
		}
	}()
	events, err = handler(p.state, msg)
	return events, false, err
}

func (p *Processor) begin() {
	p.mu.Lock()
	p.pending++
	if p.metrics != nil {
		p.metrics.Pending.Set(float64(p.pending))
	}
	p.mu.Unlock()
}

func (p *Processor) finish(seq uint64) {
	p.mu.Lock()
	p.pending--
	if seq > p.applied {
		p.applied = seq
	}
	if p.metrics != nil {
		p.metrics.Pending.Set(float64(p.pending))
		p.metrics.AppliedSeq.Set(float64(p.applied))
	}
	close(p.changed)
	p.changed = make(chan struct{})
	p.mu.Unlock()
}

// Applied returns the sequence of the last applied log entry.
func (p *Processor) Applied() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.applied
}

// WaitIndexed blocks until lk and every log entry ahead of it have been
// applied. Writers call it after Append to get read-your-writes.
func (p *Processor) WaitIndexed(ctx context.Context, lk types.LogKey) error {
	return p.waitFor(ctx, func() bool { return p.applied >= lk.Seq })
}

// WaitDrained blocks until nothing is in flight and everything committed to
// the log so far has been applied.
func (p *Processor) WaitDrained(ctx context.Context) error {
	head := p.log.Head()
	return p.waitFor(ctx, func() bool { return p.pending == 0 && p.applied >= head })
}

func (p *Processor) waitFor(ctx context.Context, done func() bool) error {
	for {
		p.mu.Lock()
		ok := done()
		changed := p.changed
		p.mu.Unlock()

		if ok {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
