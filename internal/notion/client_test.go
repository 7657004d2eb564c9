package notion

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/bryan-buckman/ncv/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient("secret-token", WithBaseURL(srv.URL), WithRateLimit(0, 0))
}

func TestClient_SendsAuthHeaders(t *testing.T) {
	var gotAuth, gotVersion string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotVersion = r.Header.Get("Notion-Version")
		io.WriteString(w, pageJSON)
	})

	_, err := c.RetrievePage(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, DefaultVersion, gotVersion)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestClient_WithHTTPClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, pageJSON)
	}))
	t.Cleanup(srv.Close)

	var calls int
	hc := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		return http.DefaultTransport.RoundTrip(r)
	})}
	c := NewClient("secret-token", WithBaseURL(srv.URL), WithRateLimit(0, 0), WithHTTPClient(hc))

	_, err := c.RetrievePage(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestClient_RetrievePage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/pages/p1", r.URL.Path)
		io.WriteString(w, pageJSON)
	})

	obj, err := c.RetrievePage(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, model.KindPage, obj.Kind)
	assert.Equal(t, "Ship it", obj.Title())
}

func TestClient_RetrieveDatabase(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/databases/db1":
			io.WriteString(w, databaseJSON)
		default:
			io.WriteString(w, pageJSON)
		}
	})

	db, err := c.RetrieveDatabase(context.Background(), "db1")
	require.NoError(t, err)
	assert.Equal(t, "Tasks", db.Name())

	_, err = c.RetrieveDatabase(context.Background(), "p1")
	require.Error(t, err)
}

func TestClient_QueryDatabase(t *testing.T) {
	var body map[string]interface{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/databases/db1/query", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		io.WriteString(w, `{"object":"list","results":[`+pageJSON+`],"has_more":false}`)
	})

	pages, err := c.QueryDatabase(context.Background(), "db1", 500)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "p1", pages[0].ID)
	assert.Equal(t, float64(MaxPageSize), body["page_size"])
}

func TestClient_ListBlockChildren(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/blocks/p1/children", r.URL.Path)
		require.Equal(t, "100", r.URL.Query().Get("page_size"))
		io.WriteString(w, `{"results":[
		  {"object":"block","id":"b1","type":"paragraph"},
		  {"object":"block","id":"b2","type":"child_page","child_page":{"title":"Sub"}}
		]}`)
	})

	blocks, err := c.ListBlockChildren(context.Background(), "p1", 100)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.False(t, blocks[0].IsChildPage())
	assert.True(t, blocks[1].IsChildPage())
}

func TestClient_ListComments_FoldsDiscussions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/comments", r.URL.Path)
		require.Equal(t, "p1", r.URL.Query().Get("block_id"))
		io.WriteString(w, `{"results":[
		  {"object":"comment","id":"c1","discussion_id":"d1","created_time":"2024-01-01T00:00:00.000Z","created_by":{"object":"user","id":"u1"},"rich_text":[{"type":"text","plain_text":"first"}]},
		  {"object":"comment","id":"c2","discussion_id":"d1","created_time":"2024-01-02T00:00:00.000Z","created_by":{"object":"user","id":"u2"},"rich_text":[{"type":"text","plain_text":"reply"}]}
		]}`)
	})

	comments, err := c.ListComments(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "c1", comments[0].ID)
	require.NotNil(t, comments[0].Discussion)
	require.Len(t, comments[0].Discussion.Comments, 1)
	assert.Equal(t, "u2", comments[0].Discussion.Comments[0].CreatedBy.ID)
}

func TestClient_Search(t *testing.T) {
	var body struct {
		Query string            `json:"query"`
		Sort  map[string]string `json:"sort"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		io.WriteString(w, `{"results":[`+pageJSON+`,`+databaseJSON+`]}`)
	})

	objs, err := c.Search(context.Background(), "ship")
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, model.KindPage, objs[0].Kind)
	assert.Equal(t, model.KindDatabase, objs[1].Kind)
	assert.Equal(t, "ship", body.Query)
	assert.Equal(t, "descending", body.Sort["direction"])
	assert.Equal(t, "last_edited_time", body.Sort["timestamp"])
}

func TestClient_RemoteError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"object":"error","status":404,"code":"object_not_found","message":"Could not find page with ID: p1. `+SharePhrase+`."}`)
	})

	_, err := c.ListComments(context.Background(), "p1")
	require.Error(t, err)
	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusNotFound, re.Status)
	assert.Equal(t, "object_not_found", re.Code)
	assert.Equal(t, "list comments", re.Op)
	assert.True(t, IsAccessDenied(err))
}

func TestClient_RemoteErrorPlainBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "upstream down\n")
	})

	_, err := c.RetrievePage(context.Background(), "p1")
	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "upstream down", re.Message)
	assert.False(t, IsAccessDenied(err))
}

func TestClient_ContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, pageJSON)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.RetrievePage(ctx, "p1")
	require.ErrorIs(t, err, context.Canceled)
}

func TestIsAccessDenied(t *testing.T) {
	assert.False(t, IsAccessDenied(nil))
	assert.True(t, IsAccessDenied(&RemoteError{Code: "restricted_resource"}))
	assert.False(t, IsAccessDenied(&RemoteError{Code: "validation_error", Message: "bad"}))
}

func TestTokenOwner(t *testing.T) {
	tok := (&oauth2.Token{AccessToken: "x"}).WithExtra(map[string]interface{}{
		"workspace_name": "Acme",
		"owner": map[string]interface{}{
			"type": "user",
			"user": map[string]interface{}{"id": "u1", "name": "Ada"},
		},
	})
	user, ws := TokenOwner(tok)
	assert.Equal(t, model.UserRef{ID: "u1", Name: "Ada"}, user)
	assert.Equal(t, "Acme", ws)

	user, ws = TokenOwner(&oauth2.Token{AccessToken: "x"})
	assert.True(t, user.IsZero())
	assert.Equal(t, "", ws)
}
