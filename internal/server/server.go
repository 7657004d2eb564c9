// Package server provides the HTTP server and handlers.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/securecookie"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/oauth2"

	"github.com/bryan-buckman/ncv/internal/atom"
	"github.com/bryan-buckman/ncv/internal/comments"
	"github.com/bryan-buckman/ncv/internal/config"
	"github.com/bryan-buckman/ncv/internal/database"
	"github.com/bryan-buckman/ncv/internal/model"
	"github.com/bryan-buckman/ncv/internal/notion"
)

// ClientFactory returns a Notion remote authenticated with token.
type ClientFactory func(token string, log zerolog.Logger) comments.Remote

// Server is the main HTTP server.
type Server struct {
	cfg     *config.Config
	store   database.Store
	clients ClientFactory
	oauth   *oauth2.Config
	cookies *securecookie.SecureCookie
	sweeper *Sweeper
	log     zerolog.Logger
	router  chi.Router
	now     func() time.Time
}

// New creates a new server. OAuth sign-in is enabled when cfg carries a
// client ID and secret.
func New(cfg *config.Config, store database.Store, clients ClientFactory, log zerolog.Logger) *Server {
	hashKey, blockKey := []byte(cfg.CookieHashKey), []byte(cfg.CookieBlockKey)
	if len(hashKey) == 0 {
		log.Warn().Msg("no cookie hash key configured, sessions will not survive a restart")
		hashKey = securecookie.GenerateRandomKey(64)
		blockKey = securecookie.GenerateRandomKey(32)
	}
	if len(blockKey) == 0 {
		blockKey = nil
	}
	cookies := securecookie.New(hashKey, blockKey)
	cookies.MaxAge(int(cfg.SessionTTL / time.Second))

	s := &Server{
		cfg:     cfg,
		store:   store,
		clients: clients,
		cookies: cookies,
		sweeper: NewSweeper(store, cfg.SessionTTL, log),
		log:     log,
		now:     time.Now,
	}
	if cfg.OAuthEnabled() {
		s.oauth = notion.OAuthConfig(cfg.NotionAPIURL, cfg.NotionClientID, cfg.NotionClientSecret, cfg.RedirectURL())
	}
	s.setupRoutes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(hlog.NewHandler(s.log))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", s.handleLogin)
		r.Get("/callback", s.handleCallback)
		r.Post("/logout", s.handleLogout)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/me", s.handleMe)
		r.Route("/notion", func(r chi.Router) {
			r.Get("/search", s.handleSearch)
			r.Get("/diagnose", s.handleDiagnose)
			r.Get("/comments", s.handleComments)
			r.Get("/comments.atom", s.handleCommentsAtom)
		})
	})

	s.router = r
}

// Start serves on addr and runs the session sweeper until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.sweeper.Start()
	defer s.sweeper.Stop()

	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Bool("oauth", s.oauth != nil).Msg("server starting")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info().Msg("server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// --- API Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	cred, err := s.credentials(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	results, err := s.engine(r, cred).Search(r.Context(), query)
	if err != nil {
		s.remoteFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

type diagnoseResponse struct {
	PageID string `json:"pageId"`
	model.Diagnosis
	Recommendations []string `json:"recommendations"`
	NotionURL       string   `json:"notionUrl,omitempty"`
}

func (s *Server) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	cred, err := s.credentials(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	pageID := strings.TrimSpace(r.URL.Query().Get("pageId"))
	if pageID == "" {
		writeError(w, http.StatusBadRequest, "pageId is required")
		return
	}
	if _, err := notion.NormalizeID(pageID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	d := s.engine(r, cred).Diagnose(r.Context(), pageID)
	writeJSON(w, http.StatusOK, diagnoseResponse{
		PageID:          pageID,
		Diagnosis:       d,
		Recommendations: comments.Recommendations(d),
		NotionURL:       notion.PageURL(d.NormalizedID),
	})
}

func (s *Server) handleComments(w http.ResponseWriter, r *http.Request) {
	res, ok := s.aggregate(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCommentsAtom(w http.ResponseWriter, r *http.Request) {
	res, ok := s.aggregate(w, r)
	if !ok {
		return
	}
	title := "Notion comments"
	if res.DatabaseName != "" {
		title += ": " + res.DatabaseName
	}
	self := strings.TrimRight(s.cfg.BaseURL, "/") + r.URL.RequestURI()
	data, err := atom.Export(title, self, res.Comments, s.now())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("atom export failed")
		writeError(w, http.StatusInternalServerError, "failed to export")
		return
	}
	w.Header().Set("Content-Type", "application/atom+xml; charset=utf-8")
	w.Write(data)
}

// aggregate runs the shared part of the comment routes. It writes the error
// response itself and reports whether the caller should continue.
func (s *Server) aggregate(w http.ResponseWriter, r *http.Request) (*model.AggregateResult, bool) {
	cred, err := s.credentials(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return nil, false
	}
	q := r.URL.Query()
	raw := strings.TrimSpace(q.Get("rootPageId"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, comments.ErrMissingRoot.Error())
		return nil, false
	}
	root, err := notion.NormalizeID(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	opts, err := parseOptions(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	res, err := s.engine(r, cred).Aggregate(r.Context(), root, opts, cred.user)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("root", root).Msg("aggregate failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	if res.RootDenied(root) {
		writeJSON(w, http.StatusForbidden, errorResponse{
			Error:           "the integration cannot access this page; share it with the integration and try again",
			NotFoundPageIDs: res.NotFoundPageIDs,
		})
		return nil, false
	}
	return res, true
}

func parseOptions(q url.Values) (model.Options, error) {
	get := func(k string) string { return strings.TrimSpace(q.Get(k)) }
	var (
		opts model.Options
		err  error
	)
	if opts.IncludeSubPages, err = parseBool(get("includeSubPages"), true); err != nil {
		return opts, fmt.Errorf("includeSubPages: %w", err)
	}
	if opts.FilterUnresolved, err = parseBool(get("filterUnresolved"), false); err != nil {
		return opts, fmt.Errorf("filterUnresolved: %w", err)
	}
	if opts.FilterMyComments, err = parseBool(get("filterMyComments"), false); err != nil {
		return opts, fmt.Errorf("filterMyComments: %w", err)
	}
	if v := get("filterNoReplyDays"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days < 0 {
			return opts, fmt.Errorf("filterNoReplyDays: want a non-negative integer, got %q", v)
		}
		opts.FilterNoReplyDays = days
	}
	return opts, nil
}

func parseBool(v string, def bool) (bool, error) {
	if v == "" {
		return def, nil
	}
	return strconv.ParseBool(v)
}

// engine builds a per-request engine logging with the request's logger.
func (s *Server) engine(r *http.Request, cred credentials) *comments.Engine {
	log := *hlog.FromRequest(r)
	return comments.New(s.clients(cred.token, log), comments.WithLogger(log), comments.WithClock(s.now))
}

// remoteFailure maps a hard Notion failure to a response.
func (s *Server) remoteFailure(w http.ResponseWriter, r *http.Request, err error) {
	hlog.FromRequest(r).Warn().Err(err).Msg("notion request failed")
	var re *notion.RemoteError
	switch {
	case errors.As(err, &re) && re.Status == http.StatusUnauthorized:
		writeError(w, http.StatusUnauthorized, "notion rejected the access token")
	case notion.IsAccessDenied(err):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

// --- Helpers ---

type errorResponse struct {
	Error           string   `json:"error"`
	NotFoundPageIDs []string `json:"notFoundPageIds,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
