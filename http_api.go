package phoenix

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/eljojo/phoenix/types"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrEmptyText), errors.Is(err, ErrMissingParent),
		errors.Is(err, ErrMissingTarget), errors.Is(err, ErrEmptyName):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		logrus.WithError(err).Warn("request failed")
	}
	http.Error(w, err.Error(), status)
}

// windowFromQuery reads ?start=&end= into a Window.
func windowFromQuery(r *http.Request) (Window, error) {
	var w Window
	q := r.URL.Query()
	if v := q.Get("start"); v != "" {
		start, err := strconv.Atoi(v)
		if err != nil {
			return w, errors.New("start must be a number")
		}
		w.Start = start
	}
	if v := q.Get("end"); v != "" {
		end, err := strconv.Atoi(v)
		if err != nil {
			return w, errors.New("end must be a number")
		}
		w.End = &end
	}
	return w, nil
}

// pathParam returns the remainder of the path after prefix. r.URL.Path is
// already unescaped, so message keys arrive with their leading "%".
func pathParam(r *http.Request, prefix string) (string, bool) {
	if !strings.HasPrefix(r.URL.Path, prefix) {
		return "", false
	}
	v := strings.TrimPrefix(r.URL.Path, prefix)
	return v, v != ""
}

func (s *HTTPServer) windowHandler(w http.ResponseWriter, r *http.Request, read func(Window) ([]*MsgView, error)) {
	win, err := windowFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	msgs, err := read(win)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, msgs)
}

func (s *HTTPServer) httpPostsHandler(w http.ResponseWriter, r *http.Request) {
	s.windowHandler(w, r, func(win Window) ([]*MsgView, error) {
		return s.phoenix.Query.GetPosts(r.Context(), win)
	})
}

// httpPostsByHandler serves /api/posts/by/{feed}
func (s *HTTPServer) httpPostsByHandler(w http.ResponseWriter, r *http.Request) {
	feed, ok := pathParam(r, "/api/posts/by/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	s.windowHandler(w, r, func(win Window) ([]*MsgView, error) {
		return s.phoenix.Query.GetPostsBy(r.Context(), types.FeedID(feed), win)
	})
}

func (s *HTTPServer) httpInboxHandler(w http.ResponseWriter, r *http.Request) {
	s.windowHandler(w, r, func(win Window) ([]*MsgView, error) {
		return s.phoenix.Query.GetInbox(r.Context(), win)
	})
}

func (s *HTTPServer) httpAdvertsHandler(w http.ResponseWriter, r *http.Request) {
	s.windowHandler(w, r, func(win Window) ([]*MsgView, error) {
		return s.phoenix.Query.GetAdverts(r.Context(), win)
	})
}

// httpRandomAdvertsHandler serves /api/adverts/random?num=&oldest=
func (s *HTTPServer) httpRandomAdvertsHandler(w http.ResponseWriter, r *http.Request) {
	num, oldest := 1, DefaultWindowSize
	if v := r.URL.Query().Get("num"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "num must be a positive number", http.StatusBadRequest)
			return
		}
		num = n
	}
	if v := r.URL.Query().Get("oldest"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "oldest must be a positive number", http.StatusBadRequest)
			return
		}
		oldest = n
	}
	msgs, err := s.phoenix.Query.GetRandomAdverts(r.Context(), num, oldest)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, msgs)
}

func (s *HTTPServer) httpCountsHandler(w http.ResponseWriter, r *http.Request) {
	q := s.phoenix.Query
	writeJSON(w, map[string]int{
		"posts":   q.PostCount(),
		"inbox":   q.InboxCount(),
		"adverts": q.AdvertCount(),
	})
}

// httpMsgHandler serves /api/msg/{key}
func (s *HTTPServer) httpMsgHandler(w http.ResponseWriter, r *http.Request) {
	key, ok := pathParam(r, "/api/msg/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	msg, err := s.phoenix.Query.GetMsg(r.Context(), types.MsgKey(key))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, msg)
}

// httpThreadHandler serves /api/thread/{key}
func (s *HTTPServer) httpThreadHandler(w http.ResponseWriter, r *http.Request) {
	key, ok := pathParam(r, "/api/thread/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	thread, err := s.phoenix.Query.GetThread(r.Context(), types.MsgKey(key))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, thread)
}

func (s *HTTPServer) httpNamesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.phoenix.Query.NamesByID())
}

func (s *HTTPServer) httpIDsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.phoenix.Query.IDsByName())
}

func (s *HTTPServer) httpConflictsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.phoenix.Query.Conflicts())
}

func (s *HTTPServer) httpProfilesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.phoenix.Query.GetAllProfiles())
}

// httpProfileHandler serves /api/profile/{feed}
func (s *HTTPServer) httpProfileHandler(w http.ResponseWriter, r *http.Request) {
	feed, ok := pathParam(r, "/api/profile/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	profile := s.phoenix.Query.GetProfile(types.FeedID(feed))
	if profile == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, profile)
}

type publishPostRequest struct {
	Text   string       `json:"text"`
	Parent types.MsgKey `json:"parent,omitempty"`
}

// httpPublishPostHandler publishes a post (or a reply when parent is set)
// as the local identity and returns it once indexed.
func (s *HTTPServer) httpPublishPostHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req publishPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	var (
		msg *MsgView
		err error
	)
	if req.Parent != "" {
		msg, err = s.phoenix.Publisher.PostReply(r.Context(), req.Text, req.Parent)
	} else {
		msg, err = s.phoenix.Publisher.PostText(r.Context(), req.Text)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(msg); err != nil {
		logrus.WithError(err).Warn("Failed to encode response")
	}
}
