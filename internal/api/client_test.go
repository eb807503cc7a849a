package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmelchner/applyflow/internal/models"
)

// recorded captures the request the handler saw so tests can assert on
// method, path, query, headers, and body after the call returns.
type recorded struct {
	method string
	path   string
	query  map[string]string
	auth   string
	body   []byte
}

// newTestClient starts a server that records each request and answers
// with status and respBody. It returns the client and the last request.
func newTestClient(t *testing.T, status int, respBody string) (*Client, *recorded) {
	t.Helper()

	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.query = map[string]string{}
		for k := range r.URL.Query() {
			rec.query[k] = r.URL.Query().Get(k)
		}
		rec.auth = r.Header.Get("Authorization")
		buf := new(bytes.Buffer)
		buf.ReadFrom(r.Body)
		rec.body = buf.Bytes()

		w.WriteHeader(status)
		w.Write([]byte(respBody))
	}))
	t.Cleanup(srv.Close)

	return New(srv.URL, "secret-token"), rec
}

func TestListPages(t *testing.T) {
	c, rec := newTestClient(t, http.StatusOK,
		`[{"id":"p1","title":"Backend Engineer"},{"id":"p2","title":"SRE"}]`)

	pages, err := c.ListPages(context.Background())
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, rec.method)
	assert.Equal(t, "/api/pages", rec.path)
	assert.Equal(t, "Bearer secret-token", rec.auth)
	require.Len(t, pages, 2)
	assert.Equal(t, "Backend Engineer", pages[0].Title)
}

func TestCreatePage(t *testing.T) {
	c, rec := newTestClient(t, http.StatusOK, `{"id":"p9","title":"New Role"}`)

	page, err := c.CreatePage(context.Background(), "New Role")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, "/api/pages", rec.path)
	assert.JSONEq(t, `{"title":"New Role"}`, string(rec.body))
	assert.Equal(t, "p9", page.ID)
}

func TestRenamePage(t *testing.T) {
	c, rec := newTestClient(t, http.StatusOK, `{}`)

	require.NoError(t, c.RenamePage(context.Background(), "p1", "Renamed"))

	assert.Equal(t, http.MethodPut, rec.method)
	assert.Equal(t, "/api/pages/p1", rec.path)
	assert.JSONEq(t, `{"title":"Renamed"}`, string(rec.body))
}

func TestDeletePage(t *testing.T) {
	c, rec := newTestClient(t, http.StatusNoContent, "")

	require.NoError(t, c.DeletePage(context.Background(), "p1"))

	assert.Equal(t, http.MethodDelete, rec.method)
	assert.Equal(t, "/api/pages/p1", rec.path)
}

func TestListMessages(t *testing.T) {
	c, rec := newTestClient(t, http.StatusOK,
		`[{"id":"m1","page_id":"p1","content":"hi","is_user":true}]`)

	msgs, err := c.ListMessages(context.Background(), "p1")
	require.NoError(t, err)

	assert.Equal(t, "/api/messages", rec.path)
	assert.Equal(t, "p1", rec.query["page_id"])
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsUser)
}

func TestUpdateMessageCascade(t *testing.T) {
	tests := []struct {
		name        string
		cascade     bool
		wantCascade string
	}{
		{name: "with cascade", cascade: true, wantCascade: "true"},
		{name: "without cascade", cascade: false, wantCascade: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newTestClient(t, http.StatusOK, `{}`)

			require.NoError(t, c.UpdateMessage(context.Background(), "m1", "new text", tt.cascade))

			assert.Equal(t, http.MethodPut, rec.method)
			assert.Equal(t, "/api/messages/m1", rec.path)
			assert.Equal(t, tt.wantCascade, rec.query["cascade"])
			assert.JSONEq(t, `{"content":"new text"}`, string(rec.body))
		})
	}
}

func TestDeleteMessageFlags(t *testing.T) {
	tests := []struct {
		name           string
		cascade, above bool
		wantQuery      map[string]string
	}{
		{name: "plain", wantQuery: map[string]string{}},
		{name: "cascade", cascade: true, wantQuery: map[string]string{"cascade": "true"}},
		{name: "cascade and above", cascade: true, above: true,
			wantQuery: map[string]string{"cascade": "true", "above": "true"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newTestClient(t, http.StatusNoContent, "")

			require.NoError(t, c.DeleteMessage(context.Background(), "m1", tt.cascade, tt.above))

			assert.Equal(t, http.MethodDelete, rec.method)
			assert.Equal(t, "/api/messages/m1", rec.path)
			assert.Equal(t, tt.wantQuery, rec.query)
		})
	}
}

func TestDownloadPDF(t *testing.T) {
	payload := bytes.Repeat([]byte("pdf-bytes-"), 100)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/pdf/download", r.URL.Path)
		assert.Equal(t, "p1", r.URL.Query().Get("page_id"))
		w.Write(payload)
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL, "secret-token")

	var out bytes.Buffer
	var lastWritten, lastTotal int64
	err := c.DownloadPDF(context.Background(), "p1", &out, func(written, total int64) {
		lastWritten, lastTotal = written, total
	})
	require.NoError(t, err)

	assert.Equal(t, payload, out.Bytes())
	assert.Equal(t, int64(len(payload)), lastWritten)
	assert.Equal(t, int64(len(payload)), lastTotal)
}

func TestVerifyExtensionToken(t *testing.T) {
	c, rec := newTestClient(t, http.StatusOK,
		`{"valid":true,"user_email":"dev@example.com"}`)

	result, err := c.VerifyExtensionToken(context.Background(), "ext-token")
	require.NoError(t, err)

	assert.Equal(t, "/api/extension-tokens/verify", rec.path)
	assert.JSONEq(t, `{"token":"ext-token"}`, string(rec.body))
	assert.True(t, result.Valid)
	assert.Equal(t, "dev@example.com", result.UserEmail)
}

func TestAdminEndpoints(t *testing.T) {
	t.Run("list users", func(t *testing.T) {
		c, rec := newTestClient(t, http.StatusOK,
			`[{"id":"u1","email":"dev@example.com","subscription":"pro"}]`)

		users, err := c.ListUsers(context.Background())
		require.NoError(t, err)

		assert.Equal(t, "/api/admin/users", rec.path)
		require.Len(t, users, 1)
		assert.Equal(t, "pro", users[0].Subscription)
	})

	t.Run("update subscription", func(t *testing.T) {
		c, rec := newTestClient(t, http.StatusOK, `{}`)

		require.NoError(t, c.UpdateSubscription(context.Background(), "u1", "pro"))

		assert.Equal(t, http.MethodPut, rec.method)
		assert.Equal(t, "/api/admin/users/u1/subscription", rec.path)
		assert.JSONEq(t, `{"subscription":"pro"}`, string(rec.body))
	})

	t.Run("stats", func(t *testing.T) {
		c, rec := newTestClient(t, http.StatusOK,
			`{"users":3,"pages":10,"messages":42,"pdfs_generated":5}`)

		stats, err := c.GetAdminStats(context.Background())
		require.NoError(t, err)

		assert.Equal(t, "/api/admin/stats", rec.path)
		assert.Equal(t, 42, stats.Messages)
	})
}

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
		wantMsg  string
	}{
		{
			name:     "404 maps to ErrNotFound",
			status:   http.StatusNotFound,
			body:     `{"error":"page not found"}`,
			sentinel: ErrNotFound,
			wantMsg:  "page not found",
		},
		{
			name:     "401 maps to ErrUnauthorized",
			status:   http.StatusUnauthorized,
			body:     `{"message":"token expired"}`,
			sentinel: ErrUnauthorized,
			wantMsg:  "token expired",
		},
		{
			name:     "403 maps to ErrUnauthorized",
			status:   http.StatusForbidden,
			body:     `{"error":"admin only"}`,
			sentinel: ErrUnauthorized,
			wantMsg:  "admin only",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, tt.status, tt.body)

			_, err := c.GetPage(context.Background(), "p1")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)

			var apiErr *Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
		})
	}
}

func TestErrorNonJSONBody(t *testing.T) {
	c, _ := newTestClient(t, http.StatusInternalServerError, "everything is on fire")

	_, err := c.ListPages(context.Background())
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "everything is on fire", apiErr.Message)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestNoAuthHeaderWithoutToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode([]models.Page{})
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL, "")
	_, err := c.ListPages(context.Background())
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}
