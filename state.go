package phoenix

import (
	"sync"

	"github.com/eljojo/phoenix/types"
)

// State holds every derived view of the log: post/thread indexes, inbox,
// adverts, profiles and name bindings.
//
// The processor is its only writer and applies one message at a time while
// holding the write lock. Readers go through Query, which takes the read lock
// and copies data out, so nobody observes a partially applied message.
type State struct {
	me types.FeedID

	// indexes
	posts         *SortedIndex
	myPosts       *SortedIndex // also postsByAuthor[me]
	postsByAuthor map[types.FeedID]*SortedIndex
	inbox         *SortedIndex
	adverts       *SortedIndex

	// views
	profiles map[types.FeedID]*Profile
	trusted  map[types.FeedID]struct{}
	names    *NameBindings
	threads  map[types.MsgKey]*ThreadNode

	// applied message keys, for idempotent replay
	applied map[types.MsgKey]struct{}

	mu sync.RWMutex
}

// NewState creates empty views for the given local identity.
func NewState(me types.FeedID) *State {
	s := &State{
		me:            me,
		posts:         NewSortedIndex(),
		myPosts:       NewSortedIndex(),
		postsByAuthor: make(map[types.FeedID]*SortedIndex),
		inbox:         NewSortedIndex(),
		adverts:       NewSortedIndex(),
		profiles:      make(map[types.FeedID]*Profile),
		trusted:       make(map[types.FeedID]struct{}),
		names:         NewNameBindings(),
		threads:       make(map[types.MsgKey]*ThreadNode),
		applied:       make(map[types.MsgKey]struct{}),
	}
	s.postsByAuthor[me] = s.myPosts
	return s
}

// Me returns the local identity.
func (s *State) Me() types.FeedID {
	return s.me
}

func (s *State) authorIndex(author types.FeedID) *SortedIndex {
	idx, ok := s.postsByAuthor[author]
	if !ok {
		idx = NewSortedIndex()
		s.postsByAuthor[author] = idx
	}
	return idx
}

// markApplied records key as applied. Returns false if it already was.
func (s *State) markApplied(key types.MsgKey) bool {
	if _, ok := s.applied[key]; ok {
		return false
	}
	s.applied[key] = struct{}{}
	return true
}
