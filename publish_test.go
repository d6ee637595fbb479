package phoenix

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish_ValidationAppendsNothing(t *testing.T) {
	f := testNode(t, alice)
	pub := f.node.Publisher
	ctx := context.Background()

	_, err := pub.PostText(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyText)
	_, err = pub.PostReply(ctx, "", "%parent.sha256")
	assert.ErrorIs(t, err, ErrEmptyText)
	_, err = pub.PostReply(ctx, "hi", "")
	assert.ErrorIs(t, err, ErrMissingParent)
	_, err = pub.PostAdvert(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyText)
	_, err = pub.NameSelf(ctx, " ")
	assert.ErrorIs(t, err, ErrEmptyName)
	_, err = pub.NameOther(ctx, "", "bob")
	assert.ErrorIs(t, err, ErrMissingTarget)
	_, err = pub.NameOther(ctx, bob, "")
	assert.ErrorIs(t, err, ErrEmptyName)
	_, err = pub.Trust(ctx, "", true)
	assert.ErrorIs(t, err, ErrMissingTarget)

	assert.Equal(t, uint64(0), f.log.Head())
}

func TestPublish_ReadYourWrites(t *testing.T) {
	f := testNode(t, alice)
	pub := f.node.Publisher
	q := f.query()
	ctx := context.Background()

	post, err := pub.PostText(ctx, "hello @bob.ed25519")
	require.NoError(t, err)
	assert.Equal(t, alice, post.Value.Author)
	assert.Equal(t, int64(1), post.Value.Sequence)
	assert.Equal(t, []Link{{Rel: RelMentions, Feed: bob}}, post.Value.Content.LinksOf(RelMentions))

	posts, err := q.GetMyPosts(ctx, Window{})
	require.NoError(t, err)
	assert.Equal(t, post.Key, keysOf(posts)[0], "published post is visible as soon as PostText returns")

	reply, err := pub.PostReply(ctx, "answering myself", post.Key)
	require.NoError(t, err)
	require.NotNil(t, reply.Thread)
	assert.Equal(t, post.Key, *reply.Thread.Parent)
	assert.Equal(t, 1, q.GetThreadMeta(post.Key).NumThreadReplies)

	_, err = pub.PostAdvert(ctx, "cheap stuff")
	require.NoError(t, err)
	assert.Equal(t, 1, q.AdvertCount())

	_, err = pub.NameSelf(ctx, "alice")
	require.NoError(t, err)
	name, _ := q.Name(alice)
	assert.Equal(t, "alice", name)

	_, err = pub.NameOther(ctx, bob, "bobby")
	require.NoError(t, err)
	name, _ = q.Name(bob)
	assert.Equal(t, "bobby", name)

	_, err = pub.Trust(ctx, charlie, true)
	require.NoError(t, err)
	assert.Equal(t, TrustFull, q.GetProfile(charlie).Trust)
	_, err = pub.Trust(ctx, charlie, false)
	require.NoError(t, err)
	assert.Equal(t, TrustNone, q.GetProfile(charlie).Trust)
}

func TestPublish_EnsureInitOnlyOnce(t *testing.T) {
	f := testNode(t, alice)
	ctx := context.Background()

	require.NoError(t, f.node.EnsureInit(ctx))
	require.NoError(t, f.node.EnsureInit(ctx))

	assert.Equal(t, uint64(1), f.log.Head())
	me := f.query().GetMyProfile()
	require.NotNil(t, me)
	assert.NotNil(t, me.CreatedAt)
}

func TestPublish_CanceledContext(t *testing.T) {
	f := testNode(t, alice)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.node.Publisher.PostText(ctx, "too late")
	assert.ErrorIs(t, err, context.Canceled)
}
