package storeclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/balaji-balu/codeboard/internal/store"
)

func newStoreServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	store.NewHandlers(store.NewMemory(), zap.NewNop()).Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := New(newStoreServer(t).URL + "/")

	id, err := c.LastID(ctx)
	require.NoError(t, err)
	assert.Zero(t, id)

	id, err = c.Append(ctx, " 4829 ", 1700000000, "node-a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	resp, err := c.Poll(ctx, 0)
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "4829", resp.Messages[0].Code)
	assert.Equal(t, "node-a", resp.Messages[0].NodeID)

	require.NoError(t, c.Clear(ctx))
	resp, err = c.Poll(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, resp.Messages)
	assert.Equal(t, int64(1), resp.LastID)
}

func TestBlankCodeMakesNoRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Append(context.Background(), " \t ", 0, "n")
	assert.ErrorIs(t, err, ErrBlankCode)
	assert.Zero(t, hits.Load())
}

func TestPollErrors(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		"non 2xx": {
			status: http.StatusBadGateway,
			body:   "upstream down",
			check: func(t *testing.T, err error) {
				var se *StatusError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, http.StatusBadGateway, se.Code)
				assert.Equal(t, "upstream down", se.Body)
			},
		},
		"not json": {
			status: http.StatusOK,
			body:   "<html>",
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrMalformed) },
		},
		"missing last_id": {
			status: http.StatusOK,
			body:   `{"messages":[]}`,
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrMalformed) },
		},
		"missing messages": {
			status: http.StatusOK,
			body:   `{"last_id":3}`,
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrMalformed) },
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.NotEmpty(t, r.URL.Query().Get("t"))
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()
			_, err := New(srv.URL).Poll(context.Background(), 0)
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}

func TestAppendRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"nope"}`))
	}))
	defer srv.Close()
	_, err := New(srv.URL).Append(context.Background(), "1", 1, "n")
	assert.ErrorIs(t, err, ErrRejected)
}
