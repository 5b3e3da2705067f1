package status

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"slices"
	"time"

	"github.com/chris/chloe/internal/state"
	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// UserStatus is the read-only view of one user's record.
type UserStatus struct {
	User              string `json:"user"`
	RelationshipLevel int    `json:"relationship_level"`
	Messages          int    `json:"messages"`
	VoiceMessages     int    `json:"voice_messages"`
	DominantEmotion   string `json:"dominant_emotion"`
	Mode              string `json:"mode"`
	Memories          int    `json:"memories"`
	LastSeen          string `json:"last_seen,omitempty"`
	LastSeenAgo       string `json:"last_seen_ago,omitempty"`
	LastInitiativeAgo string `json:"last_initiative_ago,omitempty"`
}

// Server exposes the monitoring endpoints. It never writes to the store.
type Server struct {
	repo state.Repository
	now  func() time.Time
	http *http.Server
}

func New(addr string, repo state.Repository) *Server {
	s := &Server{repo: repo, now: time.Now}
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /users", s.handleUsers)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("status: listening on %s", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	ids, err := s.repo.IDs(r.Context())
	if err != nil {
		log.Printf("status: listing users: %v", err)
		writeError(w, http.StatusInternalServerError, "could not list users")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": ids})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("user")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing user parameter")
		return
	}
	ids, err := s.repo.IDs(r.Context())
	if err != nil {
		log.Printf("status: listing users: %v", err)
		writeError(w, http.StatusInternalServerError, "could not list users")
		return
	}
	if !slices.Contains(ids, id) {
		writeError(w, http.StatusNotFound, "unknown user")
		return
	}
	st, err := s.repo.Get(r.Context(), id)
	if err != nil {
		log.Printf("status: loading %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "could not load user")
		return
	}
	writeJSON(w, http.StatusOK, s.view(id, st))
}

func (s *Server) view(id string, st *state.UserState) UserStatus {
	now := s.now()
	v := UserStatus{
		User:              id,
		RelationshipLevel: st.RelationshipLevel,
		Messages:          st.Stats.Messages,
		VoiceMessages:     st.Stats.VoiceMessages,
		DominantEmotion:   string(st.DominantEmotion),
		Mode:              string(st.Mode),
		Memories:          st.MemoryCount(),
	}
	if !st.LastSeen.IsZero() {
		v.LastSeen = st.LastSeen.Format(time.RFC3339)
		v.LastSeenAgo = humanize.RelTime(st.LastSeen, now, "ago", "from now")
	}
	if !st.LastInitiative.IsZero() {
		v.LastInitiativeAgo = humanize.RelTime(st.LastInitiative, now, "ago", "from now")
	}
	return v
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("status: encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
