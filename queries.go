package phoenix

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"github.com/eljojo/phoenix/types"
)

// DefaultWindowSize is the number of entries a window read returns when no
// end is given.
const DefaultWindowSize = 30

// Window selects entries [Start, End) of an index. A nil End means
// Start + DefaultWindowSize.
type Window struct {
	Start int
	End   *int
}

// Range is the window [start, end).
func Range(start, end int) Window {
	return Window{Start: start, End: &end}
}

func (w Window) bounds() (int, int) {
	start := w.Start
	if start < 0 {
		start = 0
	}
	if w.End == nil {
		return start, start + DefaultWindowSize
	}
	return start, *w.End
}

// MsgView is a message merged with its thread metadata, if it has any.
type MsgView struct {
	Key    types.MsgKey `json:"key"`
	Value  *Message     `json:"value"`
	Thread *ThreadMeta  `json:"thread,omitempty"`
}

// ThreadView is a message with its whole reply tree.
type ThreadView struct {
	Key              types.MsgKey  `json:"key"`
	Value            *Message      `json:"value"`
	Parent           *types.MsgKey `json:"parent"`
	Replies          []*ThreadView `json:"replies"`
	NumThreadReplies int           `json:"numThreadReplies"`
}

// Query is the read side over the state. It never mutates anything.
type Query struct {
	log   Log
	state *State
	bus   *EventBus
}

func NewQuery(log Log, state *State, bus *EventBus) *Query {
	return &Query{log: log, state: state, bus: bus}
}

// Events subscribes to post notifications.
func (q *Query) Events() *Subscription {
	return q.bus.Subscribe()
}

func (q *Query) threadMeta(key types.MsgKey) *ThreadMeta {
	q.state.mu.RLock()
	defer q.state.mu.RUnlock()
	if t, ok := q.state.threads[key]; ok {
		return t.meta()
	}
	return nil
}

// GetThreadMeta returns the thread metadata of key, or nil.
func (q *Query) GetThreadMeta(key types.MsgKey) *ThreadMeta {
	return q.threadMeta(key)
}

// GetAllThreadMetas returns a copy of every thread node.
func (q *Query) GetAllThreadMetas() map[types.MsgKey]*ThreadMeta {
	q.state.mu.RLock()
	defer q.state.mu.RUnlock()
	out := make(map[types.MsgKey]*ThreadMeta, len(q.state.threads))
	for k, t := range q.state.threads {
		out[k] = t.meta()
	}
	return out
}

// GetMsg dereferences key and merges its thread metadata.
func (q *Query) GetMsg(ctx context.Context, key types.MsgKey) (*MsgView, error) {
	msg, err := q.log.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return &MsgView{Key: key, Value: msg, Thread: q.threadMeta(key)}, nil
}

func (q *Query) getMsgs(ctx context.Context, keys []types.MsgKey) ([]*MsgView, error) {
	out := make([]*MsgView, 0, len(keys))
	for _, key := range keys {
		view, err := q.GetMsg(ctx, key)
		if err != nil {
			return nil, err
		}
		out = append(out, view)
	}
	return out, nil
}

// GetReplies returns the direct replies to key, newest first.
func (q *Query) GetReplies(ctx context.Context, key types.MsgKey) ([]*MsgView, error) {
	meta := q.threadMeta(key)
	if meta == nil {
		return []*MsgView{}, nil
	}
	return q.getMsgs(ctx, meta.Replies)
}

// GetPostParent returns the message key replies to, or nil.
func (q *Query) GetPostParent(ctx context.Context, key types.MsgKey) (*MsgView, error) {
	meta := q.threadMeta(key)
	if meta == nil || meta.Parent == nil {
		return nil, nil
	}
	return q.GetMsg(ctx, *meta.Parent)
}

// GetThread returns key with its full reply tree.
func (q *Query) GetThread(ctx context.Context, key types.MsgKey) (*ThreadView, error) {
	return q.getThread(ctx, key, map[types.MsgKey]struct{}{})
}

func (q *Query) getThread(ctx context.Context, key types.MsgKey, visited map[types.MsgKey]struct{}) (*ThreadView, error) {
	visited[key] = struct{}{}
	view, err := q.GetMsg(ctx, key)
	if err != nil {
		return nil, err
	}
	t := &ThreadView{Key: key, Value: view.Value}
	if view.Thread == nil {
		return t, nil
	}
	t.Parent = view.Thread.Parent
	t.NumThreadReplies = view.Thread.NumThreadReplies
	t.Replies = make([]*ThreadView, 0, len(view.Thread.Replies))
	for _, rkey := range view.Thread.Replies {
		if _, seen := visited[rkey]; seen {
			continue
		}
		child, err := q.getThread(ctx, rkey, visited)
		if err != nil {
			return nil, err
		}
		t.Replies = append(t.Replies, child)
	}
	return t, nil
}

func (q *Query) window(ctx context.Context, pick func(s *State) *SortedIndex, w Window) ([]*MsgView, error) {
	start, end := w.bounds()
	q.state.mu.RLock()
	var keys []types.MsgKey
	if idx := pick(q.state); idx != nil {
		keys = idx.Slice(start, end)
	}
	q.state.mu.RUnlock()
	return q.getMsgs(ctx, keys)
}

func (q *Query) GetPosts(ctx context.Context, w Window) ([]*MsgView, error) {
	return q.window(ctx, func(s *State) *SortedIndex { return s.posts }, w)
}

func (q *Query) GetPostsBy(ctx context.Context, author types.FeedID, w Window) ([]*MsgView, error) {
	return q.window(ctx, func(s *State) *SortedIndex { return s.postsByAuthor[author] }, w)
}

func (q *Query) GetMyPosts(ctx context.Context, w Window) ([]*MsgView, error) {
	return q.window(ctx, func(s *State) *SortedIndex { return s.myPosts }, w)
}

func (q *Query) GetInbox(ctx context.Context, w Window) ([]*MsgView, error) {
	return q.window(ctx, func(s *State) *SortedIndex { return s.inbox }, w)
}

func (q *Query) GetAdverts(ctx context.Context, w Window) ([]*MsgView, error) {
	return q.window(ctx, func(s *State) *SortedIndex { return s.adverts }, w)
}

func (q *Query) count(pick func(s *State) *SortedIndex) int {
	q.state.mu.RLock()
	defer q.state.mu.RUnlock()
	return pick(q.state).Len()
}

func (q *Query) PostCount() int {
	return q.count(func(s *State) *SortedIndex { return s.posts })
}

func (q *Query) InboxCount() int {
	return q.count(func(s *State) *SortedIndex { return s.inbox })
}

func (q *Query) AdvertCount() int {
	return q.count(func(s *State) *SortedIndex { return s.adverts })
}

// GetRandomAdverts returns up to num distinct adverts picked at random among
// the `oldest` most recent ones.
func (q *Query) GetRandomAdverts(ctx context.Context, num, oldest int) ([]*MsgView, error) {
	q.state.mu.RLock()
	pool := q.state.adverts.Len()
	if oldest < pool {
		pool = oldest
	}
	if num > pool {
		num = pool
	}
	var keys []types.MsgKey
	if num > 0 {
		recent := q.state.adverts.Slice(0, pool)
		for _, i := range rand.Perm(pool)[:num] {
			keys = append(keys, recent[i])
		}
	}
	q.state.mu.RUnlock()
	return q.getMsgs(ctx, keys)
}

// NamesByID returns the display name of every named identity.
func (q *Query) NamesByID() map[types.FeedID]string {
	q.state.mu.RLock()
	defer q.state.mu.RUnlock()
	return q.state.names.NamesByID()
}

// Name returns the display name of id.
func (q *Query) Name(id types.FeedID) (string, bool) {
	q.state.mu.RLock()
	defer q.state.mu.RUnlock()
	return q.state.names.Name(id)
}

// IDsByName returns the owner of every display name.
func (q *Query) IDsByName() map[string]types.FeedID {
	q.state.mu.RLock()
	defer q.state.mu.RUnlock()
	return q.state.names.IDsByName()
}

// NameTrustRank returns the trust rank backing id's current name.
func (q *Query) NameTrustRank(id types.FeedID) float64 {
	q.state.mu.RLock()
	defer q.state.mu.RUnlock()
	return q.state.names.Rank(id)
}

// Conflicts lists display names claimed by several identities.
func (q *Query) Conflicts() []NameConflict {
	q.state.mu.RLock()
	defer q.state.mu.RUnlock()
	return q.state.names.Conflicts()
}

// GetProfile returns a copy of id's profile, or nil if nothing references id.
func (q *Query) GetProfile(id types.FeedID) *Profile {
	q.state.mu.RLock()
	defer q.state.mu.RUnlock()
	if p, ok := q.state.profiles[id]; ok {
		return p.clone()
	}
	return nil
}

func (q *Query) GetMyProfile() *Profile {
	return q.GetProfile(q.state.Me())
}

// GetAllProfiles returns copies of every profile, sorted by id.
func (q *Query) GetAllProfiles() []*Profile {
	q.state.mu.RLock()
	defer q.state.mu.RUnlock()
	out := make([]*Profile, 0, len(q.state.profiles))
	for _, p := range q.state.profiles {
		out = append(out, p.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
