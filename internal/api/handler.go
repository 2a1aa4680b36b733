package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/kvantora/comment-bridge/internal/biz/domain"
	"github.com/kvantora/comment-bridge/internal/biz/repo"
	"github.com/kvantora/comment-bridge/internal/biz/usecase"
)

const (
	defaultCommentLimit = 50
	maxCommentLimit     = 500
)

// Server provides the operational HTTP API: health, metrics and read-only views
type Server struct {
	store      repo.StoreRepo
	selections *usecase.SelectionStore
	metrics    http.Handler

	server *http.Server
	addr   string
}

// Comment is the JSON view of a stored comment
type Comment struct {
	ID        int64   `json:"id"`
	ChannelID int64   `json:"channel_id"`
	PostID    int     `json:"post_id"`
	UserID    int64   `json:"user_id"`
	Text      string  `json:"text"`
	CreatedAt string  `json:"created_at"`
	Media     []Media `json:"media,omitempty"`
}

// Media is the JSON view of a comment attachment
type Media struct {
	Type    string `json:"type"`
	FileID  string `json:"file_id"`
	GroupID string `json:"group_id,omitempty"`
}

// Selection is the JSON view of a pending post selection
type Selection struct {
	UserID     int64  `json:"user_id"`
	ChannelID  int64  `json:"channel_id"`
	PostID     int    `json:"post_id"`
	SelectedAt string `json:"selected_at"`
}

// NewServer creates a new API server
func NewServer(store repo.StoreRepo, selections *usecase.SelectionStore, metricsHandler http.Handler, addr string) *Server {
	return &Server{
		store:      store,
		selections: selections,
		metrics:    metricsHandler,
		addr:       addr,
	}
}

// Router builds the route table
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/comments", s.handleComments)
		r.Get("/selections", s.handleSelections)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleComments lists the latest comments for ?channel_id=&post_id=&limit=
func (s *Server) handleComments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	channelID, err := strconv.ParseInt(q.Get("channel_id"), 10, 64)
	if err != nil {
		s.writeStatus(w, http.StatusBadRequest, "channel_id must be an integer")
		return
	}
	postID, err := strconv.Atoi(q.Get("post_id"))
	if err != nil {
		s.writeStatus(w, http.StatusBadRequest, "post_id must be an integer")
		return
	}

	limit := defaultCommentLimit
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			s.writeStatus(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxCommentLimit)
	}

	comments, err := s.store.ListComments(r.Context(), channelID, postID, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	result := make([]Comment, 0, len(comments))
	for _, c := range comments {
		result = append(result, ConvertComment(c))
	}
	s.writeJSON(w, map[string]interface{}{"comments": result})
}

func (s *Server) handleSelections(w http.ResponseWriter, r *http.Request) {
	pending := s.selections.List()

	result := make([]Selection, 0, len(pending))
	for userID, sel := range pending {
		result = append(result, Selection{
			UserID:     userID,
			ChannelID:  sel.Post.ChannelID,
			PostID:     sel.Post.PostID,
			SelectedAt: sel.SelectedAt.UTC().Format(time.RFC3339),
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UserID < result[j].UserID })

	s.writeJSON(w, map[string]interface{}{
		"count":      len(result),
		"selections": result,
	})
}

// ============ Helpers ============

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	log.Error().Err(err).Msg("api request failed")
	s.writeStatus(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) writeStatus(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// ConvertComment converts domain.Comment to api.Comment
func ConvertComment(c *domain.Comment) Comment {
	out := Comment{
		ID:        c.ID,
		ChannelID: c.ChannelID,
		PostID:    c.PostID,
		UserID:    c.UserID,
		Text:      c.Text,
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339),
	}
	for _, m := range c.Media {
		out.Media = append(out.Media, Media{Type: string(m.MediaType), FileID: m.FileID, GroupID: m.GroupID})
	}
	return out
}
