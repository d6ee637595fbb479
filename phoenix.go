package phoenix

import (
	"context"
	"fmt"

	"github.com/bugsnag/bugsnag-go"
	"github.com/eljojo/phoenix/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Phoenix wires a log to the processor, the views and their consumers.
type Phoenix struct {
	Me        types.FeedID
	Log       Log
	State     *State
	Bus       *EventBus
	Processor *Processor
	Query     *Query
	Publisher *Publisher
	Metrics   *Metrics
	Registry  *prometheus.Registry

	config Config
}

// New builds a node indexing log for cfg.FeedID. Nothing runs until Run.
func New(cfg Config, log Log) *Phoenix {
	state := NewState(cfg.FeedID)
	bus := NewEventBus()
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	processor := NewProcessor(log, state, bus)
	processor.SetMetrics(metrics)
	if cfg.BugsnagAPIKey != "" {
		processor.OnFailure = notifyBugsnag
	}

	query := NewQuery(log, state, bus)
	return &Phoenix{
		Me:        cfg.FeedID,
		Log:       log,
		State:     state,
		Bus:       bus,
		Processor: processor,
		Query:     query,
		Publisher: NewPublisher(cfg.FeedID, log, processor, query),
		Metrics:   metrics,
		Registry:  registry,
		config:    cfg,
	}
}

func notifyBugsnag(err error, lk types.LogKey, msg *Message) {
	_ = bugsnag.Notify(err, bugsnag.MetaData{
		"message": {
			"log_key": lk.String(),
			"key":     msg.Key.String(),
			"type":    msg.Content.Type,
			"author":  msg.Author.String(),
		},
	})
}

// Config returns the configuration the node was built with.
func (p *Phoenix) Config() Config {
	return p.config
}

// Run indexes the log until ctx is done.
func (p *Phoenix) Run(ctx context.Context) error {
	defer p.Bus.Close()
	return p.Processor.Run(ctx)
}

// EnsureInit publishes an init message if the local feed has never done so.
// Call it once the replay has drained.
func (p *Phoenix) EnsureInit(ctx context.Context) error {
	if me := p.Query.GetMyProfile(); me != nil && me.CreatedAt != nil {
		return nil
	}
	if _, err := p.Publisher.Init(ctx); err != nil {
		return fmt.Errorf("publish init: %w", err)
	}
	logrus.Infof("🐣 new feed %s initialized", p.Me)
	return nil
}
