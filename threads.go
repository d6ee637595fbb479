package phoenix

import (
	"github.com/eljojo/phoenix/types"
)

// ThreadNode exists for every message that replies to something or has been
// replied to.
type ThreadNode struct {
	Parent           *types.MsgKey
	replies          *SortedIndex // newest first
	NumThreadReplies int
}

func newThreadNode(parent *types.MsgKey) *ThreadNode {
	return &ThreadNode{Parent: parent, replies: NewSortedIndex()}
}

// ThreadMeta is a read-only copy of a ThreadNode.
type ThreadMeta struct {
	Parent           *types.MsgKey  `json:"parent"`
	Replies          []types.MsgKey `json:"replies"`
	NumThreadReplies int            `json:"numThreadReplies"`
}

func (t *ThreadNode) meta() *ThreadMeta {
	m := &ThreadMeta{
		Replies:          t.replies.Slice(0, t.replies.Len()),
		NumThreadReplies: t.NumThreadReplies,
	}
	if t.Parent != nil {
		parent := *t.Parent
		m.Parent = &parent
	}
	return m
}

// applyPost indexes a post: thread structure, inbox, global and per-author feeds.
// Returns true when the post entered the global post index as a new post.
func (s *State) applyPost(msg *Message) bool {
	content := msg.Content
	if empty(content.Text) {
		return false
	}

	inboxed := false
	for _, link := range content.LinksOf(RelMentions) {
		if link.Feed == s.me {
			s.addToInbox(msg)
			inboxed = true
			break
		}
	}

	isReply := false
	for _, link := range content.LinksOf(RelRepliesTo) {
		if link.Msg == "" {
			continue
		}
		isReply = true
		s.indexReply(msg, link.Msg)

		if !inboxed && s.myPosts.Contains(link.Msg) {
			s.addToInbox(msg)
			inboxed = true
		}
	}

	indexed := false
	if !isReply && !s.posts.Contains(msg.Key) {
		indexed = s.posts.Insert(msg.Timestamp, msg.Key)
	}

	s.authorIndex(msg.Author).Insert(msg.Timestamp, msg.Key)
	return indexed
}

func (s *State) indexReply(msg *Message, target types.MsgKey) {
	parent, ok := s.threads[target]
	if !ok {
		parent = newThreadNode(nil)
		s.threads[target] = parent
		// the target had no replies until now, so it may never have been
		// indexed as a post: promote it using the reply's timestamp
		if !s.posts.Contains(target) {
			s.posts.Insert(msg.Timestamp, target)
		}
	}
	if !parent.replies.Insert(msg.Timestamp, msg.Key) {
		return
	}

	// replies to this message applied earlier count towards the new ancestors too
	carried := 0
	if node, ok := s.threads[msg.Key]; ok {
		carried = node.NumThreadReplies
		if node.Parent == nil {
			p := target
			node.Parent = &p
		}
	} else {
		p := target
		s.threads[msg.Key] = newThreadNode(&p)
	}

	// walk up the chain, guarding against cycles in malformed logs
	visited := map[types.MsgKey]struct{}{}
	for key, t := target, parent; t != nil; {
		if _, seen := visited[key]; seen {
			break
		}
		visited[key] = struct{}{}
		t.NumThreadReplies += 1 + carried
		if t.Parent == nil {
			break
		}
		key = *t.Parent
		t = s.threads[key]
	}
}
