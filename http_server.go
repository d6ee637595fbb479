package phoenix

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// responseLogger wraps ResponseWriter to capture status code
type responseLogger struct {
	http.ResponseWriter
	status int
}

func (rl *responseLogger) WriteHeader(code int) {
	rl.status = code
	rl.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware wraps an http.HandlerFunc with request/response logging
func loggingMiddleware(path string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseLogger{ResponseWriter: w, status: 200}
		handler(wrapped, r)

		logrus.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     path,
			"status":   wrapped.status,
			"duration": time.Since(start),
		}).Debug("http request")
	}
}

// HTTPServer serves the query API over HTTP.
type HTTPServer struct {
	phoenix    *Phoenix
	httpServer *http.Server
	listener   net.Listener
}

func NewHTTPServer(p *Phoenix) *HTTPServer {
	return &HTTPServer{phoenix: p}
}

// Listen binds httpAddr (":8080" when empty).
func (s *HTTPServer) Listen(httpAddr string) error {
	listenInterface := httpAddr
	if listenInterface == "" {
		listenInterface = ":8080"
	}

	listener, err := net.Listen("tcp", listenInterface)
	if err != nil {
		return fmt.Errorf("listen error: %w", err)
	}
	s.listener = listener

	port := listener.Addr().(*net.TCPAddr).Port
	logrus.Printf("Listening for HTTP on port %d", port)

	s.httpServer = &http.Server{Handler: s.createHTTPMux()}
	return nil
}

// Addr returns the bound address, once Listen succeeded.
func (s *HTTPServer) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve blocks serving requests until ctx is done.
func (s *HTTPServer) Serve(ctx context.Context) error {
	errs := make(chan error, 1)
	go func() {
		errs <- s.httpServer.Serve(s.listener)
	}()

	select {
	case err := <-errs:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *HTTPServer) createHTTPMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/posts", loggingMiddleware("/api/posts", s.httpPostsHandler))
	mux.HandleFunc("/api/posts/by/", loggingMiddleware("/api/posts/by", s.httpPostsByHandler))
	mux.HandleFunc("/api/inbox", loggingMiddleware("/api/inbox", s.httpInboxHandler))
	mux.HandleFunc("/api/adverts", loggingMiddleware("/api/adverts", s.httpAdvertsHandler))
	mux.HandleFunc("/api/adverts/random", loggingMiddleware("/api/adverts/random", s.httpRandomAdvertsHandler))
	mux.HandleFunc("/api/counts", loggingMiddleware("/api/counts", s.httpCountsHandler))
	mux.HandleFunc("/api/msg/", loggingMiddleware("/api/msg", s.httpMsgHandler))
	mux.HandleFunc("/api/thread/", loggingMiddleware("/api/thread", s.httpThreadHandler))

	mux.HandleFunc("/api/names", loggingMiddleware("/api/names", s.httpNamesHandler))
	mux.HandleFunc("/api/ids", loggingMiddleware("/api/ids", s.httpIDsHandler))
	mux.HandleFunc("/api/conflicts", loggingMiddleware("/api/conflicts", s.httpConflictsHandler))
	mux.HandleFunc("/api/profiles", loggingMiddleware("/api/profiles", s.httpProfilesHandler))
	mux.HandleFunc("/api/profile/", loggingMiddleware("/api/profile", s.httpProfileHandler))

	mux.HandleFunc("/api/post", loggingMiddleware("/api/post", s.httpPublishPostHandler))

	if s.phoenix.Config().ServeMetrics {
		mux.Handle("/metrics", promhttp.HandlerFor(s.phoenix.Registry, promhttp.HandlerOpts{}))
	}
	return mux
}
