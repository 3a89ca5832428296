// Package web serves the generated per-course feeds over HTTP. Access
// control is the token in the file name; the server only exposes the feeds
// directory and a health endpoint.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	appLog "coursecal/internal/log"
)

// Server exposes /health and /feeds/ for the given directory.
type Server struct {
	feedsDir string
	mux      *http.ServeMux
}

func NewServer(feedsDir string) *Server {
	s := &Server{
		feedsDir: feedsDir,
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/feeds/", http.StripPrefix("/feeds/", s.handleFeeds()))
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

func (s *Server) handleFeeds() http.Handler {
	fileServer := http.FileServer(http.Dir(s.feedsDir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Directory listings would leak every course's token.
		if r.URL.Path == "" || r.URL.Path[len(r.URL.Path)-1] == '/' {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		fileServer.ServeHTTP(w, r)
	})
}

// Serve runs the HTTP server until ctx is canceled, then shuts it down
// gracefully.
func Serve(ctx context.Context, listen, feedsDir string) error {
	srv := &http.Server{
		Addr:              listen,
		Handler:           NewServer(feedsDir).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
