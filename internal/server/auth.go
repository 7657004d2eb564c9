package server

import (
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/securecookie"
	"github.com/rs/zerolog/hlog"

	"github.com/bryan-buckman/ncv/internal/database"
	"github.com/bryan-buckman/ncv/internal/model"
	"github.com/bryan-buckman/ncv/internal/notion"
)

const (
	sessionCookie = "ncv_session"
	stateCookie   = "ncv_oauth_state"
	stateMaxAge   = 10 * 60
)

var errUnauthenticated = errors.New("not signed in: sign in with Notion or send an Authorization bearer token")

// credentials is the Notion access a request acts with. user is zero for
// bearer tokens.
type credentials struct {
	token string
	user  model.UserRef
}

// credentials resolves the caller from a bearer token or the session cookie.
func (s *Server) credentials(r *http.Request) (credentials, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		tok, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || strings.TrimSpace(tok) == "" {
			return credentials{}, errUnauthenticated
		}
		return credentials{token: strings.TrimSpace(tok)}, nil
	}
	sess, err := s.session(r)
	if err != nil {
		return credentials{}, errUnauthenticated
	}
	return credentials{token: sess.AccessToken, user: sess.User}, nil
}

func (s *Server) session(r *http.Request) (*model.Session, error) {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil, err
	}
	var id string
	if err := s.cookies.Decode(sessionCookie, c.Value, &id); err != nil {
		return nil, err
	}
	sess, err := s.store.GetSession(id)
	if err != nil {
		return nil, err
	}
	if s.now().Sub(sess.CreatedAt) > s.cfg.SessionTTL {
		return nil, database.ErrNotFound
	}
	return sess, nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.oauth == nil {
		writeError(w, http.StatusNotFound, "sign-in with Notion is not configured")
		return
	}
	state := hex.EncodeToString(securecookie.GenerateRandomKey(16))
	encoded, err := s.cookies.Encode(stateCookie, state)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("encode state cookie")
		writeError(w, http.StatusInternalServerError, "failed to start sign-in")
		return
	}
	http.SetCookie(w, s.cookie(stateCookie, encoded, stateMaxAge))
	http.Redirect(w, r, s.oauth.AuthCodeURL(state, notion.AuthCodeOptions...), http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if s.oauth == nil {
		writeError(w, http.StatusNotFound, "sign-in with Notion is not configured")
		return
	}
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		writeError(w, http.StatusBadRequest, "sign-in was not completed: "+e)
		return
	}
	var want string
	c, err := r.Cookie(stateCookie)
	if err == nil {
		err = s.cookies.Decode(stateCookie, c.Value, &want)
	}
	if err != nil || want == "" || q.Get("state") != want {
		writeError(w, http.StatusBadRequest, "invalid sign-in state")
		return
	}
	http.SetCookie(w, s.cookie(stateCookie, "", -1))

	tok, err := s.oauth.Exchange(r.Context(), q.Get("code"))
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("oauth exchange failed")
		writeError(w, http.StatusBadGateway, "failed to exchange authorization code")
		return
	}
	user, workspace := notion.TokenOwner(tok)
	sess := &model.Session{
		AccessToken:   tok.AccessToken,
		User:          user,
		WorkspaceName: workspace,
		CreatedAt:     s.now(),
	}
	if err := s.store.CreateSession(sess); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("create session")
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	encoded, err := s.cookies.Encode(sessionCookie, sess.ID)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("encode session cookie")
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	http.SetCookie(w, s.cookie(sessionCookie, encoded, int(s.cfg.SessionTTL.Seconds())))
	hlog.FromRequest(r).Info().Str("user", user.String()).Str("workspace", workspace).Msg("signed in")
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		var id string
		if err := s.cookies.Decode(sessionCookie, c.Value, &id); err == nil {
			if err := s.store.DeleteSession(id); err != nil {
				hlog.FromRequest(r).Warn().Err(err).Msg("delete session")
			}
		}
	}
	http.SetCookie(w, s.cookie(sessionCookie, "", -1))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, errUnauthenticated.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":          sess.User,
		"workspaceName": sess.WorkspaceName,
	})
}

func (s *Server) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   strings.HasPrefix(s.cfg.BaseURL, "https://"),
		SameSite: http.SameSiteLaxMode,
	}
}
