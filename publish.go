package phoenix

import (
	"context"
	"errors"
	"fmt"

	"github.com/eljojo/phoenix/types"
)

// Validation errors returned by the publishers before anything is appended.
var (
	ErrEmptyText     = errors.New("can not publish an empty text")
	ErrMissingParent = errors.New("must provide a parent message to the reply")
	ErrMissingTarget = errors.New("target feed is required")
	ErrEmptyName     = errors.New("name is required and must be non-empty")
)

// Publisher appends messages as the local identity and returns once they are
// reflected in every index.
type Publisher struct {
	me        types.FeedID
	log       Log
	processor *Processor
	query     *Query
}

func NewPublisher(me types.FeedID, log Log, processor *Processor, query *Query) *Publisher {
	return &Publisher{me: me, log: log, processor: processor, query: query}
}

func (p *Publisher) publish(ctx context.Context, content Content) (*MsgView, error) {
	lk, err := p.log.Append(ctx, p.me, content)
	if err != nil {
		return nil, fmt.Errorf("append %s: %w", content.Type, err)
	}
	if err := p.processor.WaitIndexed(ctx, lk); err != nil {
		return nil, fmt.Errorf("wait for %s to be indexed: %w", lk, err)
	}
	return p.query.GetMsg(ctx, lk.Key)
}

// Init publishes the first message of the local feed.
func (p *Publisher) Init(ctx context.Context) (*MsgView, error) {
	return p.publish(ctx, Content{Type: TypeInit})
}

// PostText publishes a post. @feed mentions in the text become links.
func (p *Publisher) PostText(ctx context.Context, text string) (*MsgView, error) {
	if empty(text) {
		return nil, ErrEmptyText
	}
	return p.publish(ctx, extractMentions(Content{Type: TypePost, Text: text}))
}

// PostReply publishes a post replying to parent.
func (p *Publisher) PostReply(ctx context.Context, text string, parent types.MsgKey) (*MsgView, error) {
	if empty(text) {
		return nil, ErrEmptyText
	}
	if parent == "" {
		return nil, ErrMissingParent
	}
	content := Content{
		Type:  TypePost,
		Text:  text,
		Links: []Link{{Rel: RelRepliesTo, Msg: parent}},
	}
	return p.publish(ctx, extractMentions(content))
}

// PostAdvert publishes an advert.
func (p *Publisher) PostAdvert(ctx context.Context, text string) (*MsgView, error) {
	if empty(text) {
		return nil, ErrEmptyText
	}
	return p.publish(ctx, Content{Type: TypeAdvert, Text: text})
}

// NameSelf sets the local identity's own name.
func (p *Publisher) NameSelf(ctx context.Context, name string) (*MsgView, error) {
	if empty(name) {
		return nil, ErrEmptyName
	}
	return p.publish(ctx, Content{Type: TypeName, Name: name})
}

// NameOther assigns a name to target.
func (p *Publisher) NameOther(ctx context.Context, target types.FeedID, name string) (*MsgView, error) {
	if target == "" {
		return nil, ErrMissingTarget
	}
	if empty(name) {
		return nil, ErrEmptyName
	}
	return p.publish(ctx, Content{
		Type:  TypeName,
		Name:  name,
		Links: []Link{{Rel: RelNames, Feed: target}},
	})
}

// Trust declares (or withdraws) trust in target's name assignments.
func (p *Publisher) Trust(ctx context.Context, target types.FeedID, trusted bool) (*MsgView, error) {
	if target == "" {
		return nil, ErrMissingTarget
	}
	value := 0
	if trusted {
		value = 1
	}
	return p.publish(ctx, Content{
		Type:  TypeTrust,
		Links: []Link{{Rel: RelTrusts, Feed: target, Value: value}},
	})
}
