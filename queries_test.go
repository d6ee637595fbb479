package phoenix

import (
	"context"
	"fmt"
	"testing"

	"github.com/eljojo/phoenix/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuery_GetMsgNotFound(t *testing.T) {
	f := testNode(t, alice)
	_, err := f.query().GetMsg(context.Background(), "%nothing.sha256")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.query().GetThread(context.Background(), "%nothing.sha256")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQuery_GetMsgMergesThreadMeta(t *testing.T) {
	f := testNode(t, alice)
	p1 := f.post(bob, 10, "root")
	lonely := f.post(bob, 11, "nobody answers")
	f.reply(charlie, 20, "reply", p1.Key)
	f.sync()

	view, err := f.query().GetMsg(context.Background(), p1.Key)
	require.NoError(t, err)
	assert.Equal(t, "root", view.Value.Content.Text)
	require.NotNil(t, view.Thread)
	assert.Equal(t, 1, view.Thread.NumThreadReplies)

	view, err = f.query().GetMsg(context.Background(), lonely.Key)
	require.NoError(t, err)
	assert.Nil(t, view.Thread)

	parent, err := f.query().GetPostParent(context.Background(), lonely.Key)
	require.NoError(t, err)
	assert.Nil(t, parent)
}

func TestQuery_Windows(t *testing.T) {
	f := testNode(t, alice)
	var keys []types.MsgKey
	for i := 0; i < 40; i++ {
		keys = append(keys, f.post(bob, int64(i), fmt.Sprintf("post %d", i)).Key)
	}
	f.sync()
	q := f.query()
	ctx := context.Background()

	first, err := q.GetPosts(ctx, Window{})
	require.NoError(t, err)
	require.Len(t, first, DefaultWindowSize)
	assert.Equal(t, keys[39], first[0].Key)

	rest, err := q.GetPosts(ctx, Window{Start: 30})
	require.NoError(t, err)
	assert.Len(t, rest, 10)
	assert.Equal(t, keys[0], rest[9].Key)

	middle, err := q.GetPosts(ctx, Range(5, 7))
	require.NoError(t, err)
	assert.Equal(t, []types.MsgKey{keys[34], keys[33]}, keysOf(middle))

	past, err := q.GetPosts(ctx, Window{Start: 100})
	require.NoError(t, err)
	assert.Empty(t, past)

	none, err := q.GetPosts(ctx, Range(0, 0))
	require.NoError(t, err)
	assert.Empty(t, none)

	assert.Equal(t, 40, q.PostCount())
}

func TestQuery_ThreadToleratesCycles(t *testing.T) {
	f := testNode(t, alice)

	// two replies pointing at each other can only come from a malformed log
	a := Message{Author: bob, Sequence: 1, Timestamp: 10}
	b := Message{Author: charlie, Sequence: 1, Timestamp: 20}
	a.Key = "%a.sha256"
	b.Key = "%b.sha256"
	a.Content = Content{Type: TypePost, Text: "a", Links: []Link{{Rel: RelRepliesTo, Msg: b.Key}}}
	b.Content = Content{Type: TypePost, Text: "b", Links: []Link{{Rel: RelRepliesTo, Msg: a.Key}}}
	_, err := f.log.Import(context.Background(), a)
	require.NoError(t, err)
	_, err = f.log.Import(context.Background(), b)
	require.NoError(t, err)
	f.sync()

	thread, err := f.query().GetThread(context.Background(), a.Key)
	require.NoError(t, err)
	require.Len(t, thread.Replies, 1)
	assert.Equal(t, b.Key, thread.Replies[0].Key)
	assert.Empty(t, thread.Replies[0].Replies)
}
