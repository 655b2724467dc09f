package todos

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Client, *Store) {
	t.Helper()
	store := NewStore(testConfig())
	srv := httptest.NewServer(NewHandler(store))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", srv.Client()), store
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestServer(t)

	list, err := c.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	created, err := c.Create(ctx, Todo{ID: "4", Text: "ship"}, false)
	require.NoError(t, err)
	assert.Equal(t, Todo{ID: "4", Text: "ship"}, created)

	patched, err := c.Patch(ctx, "4", Updates{Text: ptr("shipped"), Completed: ptr(true)}, false)
	require.NoError(t, err)
	assert.Equal(t, Todo{ID: "4", Text: "shipped", Completed: true}, patched)

	require.NoError(t, c.Delete(ctx, "4", false))
	list, err = c.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestClientErrors(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestServer(t)

	_, err := c.Create(ctx, Todo{ID: "4"}, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSimulated)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)

	err = c.Delete(ctx, "1", true)
	assert.ErrorIs(t, err, ErrSimulated)

	_, err = c.Patch(ctx, "missing", Updates{}, false)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrSimulated)
}

func TestHandlerRejectsBadBody(t *testing.T) {
	srv := httptest.NewServer(NewHandler(NewStore(testConfig())))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/todos", "application/json", strings.NewReader("{nope"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlerDeleteWithoutBody(t *testing.T) {
	srv := httptest.NewServer(NewHandler(NewStore(testConfig())))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/todos/1", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandlerErrorBodies(t *testing.T) {
	srv := httptest.NewServer(NewHandler(NewStore(testConfig())))
	defer srv.Close()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		want   string
	}{
		{"simulated create", http.MethodPost, "/api/todos", `{"todo":{"id":"9"},"simulateFailure":true}`, http.StatusInternalServerError, "Simulated failure"},
		{"simulated delete", http.MethodDelete, "/api/todos/1", `{"simulateFailure":true}`, http.StatusInternalServerError, "Simulated failure"},
		{"missing patch", http.MethodPatch, "/api/todos/nope", `{"updates":{"text":"x"}}`, http.StatusNotFound, "Todo not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, strings.NewReader(tt.body))
			require.NoError(t, err)
			resp, err := srv.Client().Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)
			var body errorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.want, body.Error)
		})
	}
}
