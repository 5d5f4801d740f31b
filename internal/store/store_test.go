package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/balaji-balu/codeboard/pkg/model"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "codes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sq,
	}
}

func TestAppendAndSince(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			m1, err := s.Append(ctx, " 4829 ", 1700000000, "n1")
			require.NoError(t, err)
			assert.Equal(t, int64(1), m1.ID)
			assert.Equal(t, "4829", m1.Code)
			assert.True(t, m1.HasCode)
			assert.NotEmpty(t, m1.Time)

			m2, err := s.Append(ctx, "A123", 1700000001, "")
			require.NoError(t, err)
			assert.Equal(t, int64(2), m2.ID)
			assert.False(t, m2.HasCode)
			assert.Equal(t, "unknown", m2.NodeID)

			resp, err := s.Since(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, int64(2), resp.LastID)
			require.Len(t, resp.Messages, 1)
			assert.Equal(t, "A123", resp.Messages[0].Code)

			_, err = s.Append(ctx, "   ", 0, "n1")
			assert.ErrorIs(t, err, ErrBlankCode)
		})
	}
}

func TestClearKeepsIDs(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Append(ctx, "1111", 1, "n")
			require.NoError(t, err)
			_, err = s.Append(ctx, "2222", 2, "n")
			require.NoError(t, err)

			require.NoError(t, s.Clear(ctx))
			n, err := s.Len(ctx)
			require.NoError(t, err)
			assert.Zero(t, n)

			resp, err := s.Since(ctx, 0)
			require.NoError(t, err)
			assert.Empty(t, resp.Messages)
			assert.Equal(t, int64(2), resp.LastID)

			m, err := s.Append(ctx, "3333", 3, "n")
			require.NoError(t, err)
			assert.Equal(t, int64(3), m.ID)
		})
	}
}

func TestRetention(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < Retention+5; i++ {
				_, err := s.Append(ctx, "code", int64(i+1), "n")
				require.NoError(t, err)
			}
			n, err := s.Len(ctx)
			require.NoError(t, err)
			assert.Equal(t, Retention, n)

			resp, err := s.Since(ctx, 0)
			require.NoError(t, err)
			require.Len(t, resp.Messages, Retention)
			assert.Equal(t, int64(6), resp.Messages[0].ID)
			assert.Equal(t, int64(Retention+5), resp.LastID)
		})
	}
}

func TestSinceConsistentWithConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 200; i++ {
					_, _ = s.Append(ctx, "code", int64(i+1), "n")
				}
			}()

			for i := 0; i < 100; i++ {
				resp, err := s.Since(ctx, 0)
				require.NoError(t, err)
				for _, m := range resp.Messages {
					require.LessOrEqual(t, m.ID, resp.LastID, "message newer than last_id")
				}
			}
			wg.Wait()

			resp, err := s.Since(ctx, 0)
			require.NoError(t, err)
			assert.Len(t, resp.Messages, 200)
			assert.Equal(t, int64(200), resp.LastID)
		})
	}
}

func newRouter(s Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandlers(s, zap.NewNop()).Register(r)
	return r
}

func do(t *testing.T, r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandlers(t *testing.T) {
	r := newRouter(NewMemory())

	w := do(t, r, http.MethodPost, "/events", `{"code":"4829","timestamp":1700000000,"node_id":"n1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var ar model.AppendResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ar))
	assert.True(t, ar.Success)
	assert.Equal(t, int64(1), ar.MessageID)

	w = do(t, r, http.MethodPost, "/events", `{"code":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid input")

	w = do(t, r, http.MethodGet, "/api/send?code=%20%20", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ar))
	assert.False(t, ar.Success)
	assert.NotEmpty(t, ar.Error)

	w = do(t, r, http.MethodGet, "/api/send?code=A123", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodGet, "/events?last_id=0", "")
	require.Equal(t, http.StatusOK, w.Code)
	var pr model.PollResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pr))
	require.Len(t, pr.Messages, 2)
	assert.Equal(t, "api", pr.Messages[1].NodeID)
	assert.Equal(t, int64(2), pr.LastID)

	w = do(t, r, http.MethodPost, "/clear", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true}`, w.Body.String())

	w = do(t, r, http.MethodGet, "/events?last_id=0", "")
	assert.JSONEq(t, `{"messages":[],"last_id":2}`, w.Body.String())

	w = do(t, r, http.MethodGet, "/check?action=keepalive", "")
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	w = do(t, r, http.MethodGet, "/check", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
