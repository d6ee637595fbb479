package phoenix

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/eljojo/phoenix/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHTTPServer(t *testing.T) (*testFixture, http.Handler) {
	f := testNode(t, alice)
	return f, NewHTTPServer(f.node).createHTTPMux()
}

func doRequest(h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHTTP_PostsAndMessages(t *testing.T) {
	f, h := testHTTPServer(t)
	p1 := f.post(bob, 10, "hello")
	p2 := f.post(bob, 20, "world")
	r1 := f.reply(charlie, 30, "hi", p1.Key)
	f.sync()

	w := doRequest(h, "GET", "/api/posts?start=0&end=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var posts []MsgView
	require.NoError(t, json.NewDecoder(w.Body).Decode(&posts))
	require.Len(t, posts, 1)
	assert.Equal(t, p2.Key, posts[0].Key)

	w = doRequest(h, "GET", "/api/posts?end=0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	posts = nil
	require.NoError(t, json.NewDecoder(w.Body).Decode(&posts))
	assert.Empty(t, posts)

	w = doRequest(h, "GET", "/api/posts/by/"+url.PathEscape(charlie.String()), nil)
	require.Equal(t, http.StatusOK, w.Code)
	posts = nil
	require.NoError(t, json.NewDecoder(w.Body).Decode(&posts))
	require.Len(t, posts, 1)
	assert.Equal(t, r1.Key, posts[0].Key)

	w = doRequest(h, "GET", "/api/msg/"+url.PathEscape(p1.Key.String()), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var msg MsgView
	require.NoError(t, json.NewDecoder(w.Body).Decode(&msg))
	assert.Equal(t, "hello", msg.Value.Content.Text)
	require.NotNil(t, msg.Thread)
	assert.Equal(t, []types.MsgKey{r1.Key}, msg.Thread.Replies)

	w = doRequest(h, "GET", "/api/thread/"+url.PathEscape(p1.Key.String()), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var thread ThreadView
	require.NoError(t, json.NewDecoder(w.Body).Decode(&thread))
	require.Len(t, thread.Replies, 1)
	assert.Equal(t, r1.Key, thread.Replies[0].Key)

	w = doRequest(h, "GET", "/api/counts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var counts map[string]int
	require.NoError(t, json.NewDecoder(w.Body).Decode(&counts))
	assert.Equal(t, map[string]int{"posts": 2, "inbox": 0, "adverts": 0}, counts)
}

func TestHTTP_Errors(t *testing.T) {
	_, h := testHTTPServer(t)

	tests := []struct {
		method string
		path   string
		body   string
		status int
	}{
		{"GET", "/api/msg/" + url.PathEscape("%missing.sha256"), "", http.StatusNotFound},
		{"GET", "/api/msg/", "", http.StatusNotFound},
		{"GET", "/api/profile/nobody", "", http.StatusNotFound},
		{"GET", "/api/posts?start=abc", "", http.StatusBadRequest},
		{"GET", "/api/adverts/random?num=-1", "", http.StatusBadRequest},
		{"GET", "/api/post", "", http.StatusMethodNotAllowed},
		{"POST", "/api/post", "not json", http.StatusBadRequest},
		{"POST", "/api/post", `{"text":"   "}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		var body []byte
		if tt.body != "" {
			body = []byte(tt.body)
		}
		w := doRequest(h, tt.method, tt.path, body)
		if w.Code != tt.status {
			t.Errorf("%s %s: expected status %d, got %d (%s)", tt.method, tt.path, tt.status, w.Code, strings.TrimSpace(w.Body.String()))
		}
	}
}

func TestHTTP_PublishPost(t *testing.T) {
	f, h := testHTTPServer(t)

	w := doRequest(h, "POST", "/api/post", []byte(`{"text":"from the api"}`))
	require.Equal(t, http.StatusCreated, w.Code)
	var created MsgView
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	assert.Equal(t, alice, created.Value.Author)

	body, _ := json.Marshal(publishPostRequest{Text: "and a reply", Parent: created.Key})
	w = doRequest(h, "POST", "/api/post", body)
	require.Equal(t, http.StatusCreated, w.Code)

	assert.Equal(t, 1, f.query().PostCount())
	assert.Equal(t, 1, f.query().GetThreadMeta(created.Key).NumThreadReplies)
}

func TestHTTP_NamesAndProfiles(t *testing.T) {
	f, h := testHTTPServer(t)
	f.assignName(alice, bob, "bob")
	f.selfName(charlie, "bob")
	f.sync()

	w := doRequest(h, "GET", "/api/names", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var names map[types.FeedID]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&names))
	assert.Equal(t, "bob", names[bob])

	w = doRequest(h, "GET", "/api/ids", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ids map[string]types.FeedID
	require.NoError(t, json.NewDecoder(w.Body).Decode(&ids))
	assert.Equal(t, bob, ids["bob"])

	w = doRequest(h, "GET", "/api/conflicts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var conflicts []NameConflict
	require.NoError(t, json.NewDecoder(w.Body).Decode(&conflicts))
	require.Len(t, conflicts, 1)
	assert.Equal(t, "name-conflict", conflicts[0].Type)

	w = doRequest(h, "GET", "/api/profile/"+url.PathEscape(bob.String()), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var profile Profile
	require.NoError(t, json.NewDecoder(w.Body).Decode(&profile))
	assert.Equal(t, "bob", profile.AssignedBy[alice])

	w = doRequest(h, "GET", "/api/profiles", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var profiles []Profile
	require.NoError(t, json.NewDecoder(w.Body).Decode(&profiles))
	assert.Len(t, profiles, 3)
}

func TestHTTP_Metrics(t *testing.T) {
	f, h := testHTTPServer(t)
	f.post(bob, 10, "counted")
	f.sync()

	w := doRequest(h, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `phoenix_messages_processed_total{type="post"} 1`)
}
