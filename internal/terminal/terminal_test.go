package terminal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/balaji-balu/codeboard/internal/config"
	"github.com/balaji-balu/codeboard/internal/store"
	"github.com/balaji-balu/codeboard/internal/storeclient"
	"github.com/balaji-balu/codeboard/pkg/model"
)

func testConfig(t *testing.T, storeURL string) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Store.URL = storeURL
	cfg.API.Addr = "127.0.0.1:0"
	cfg.Poller.Interval = 10 * time.Millisecond
	cfg.Poller.Timeout = time.Second
	cfg.Display.Tick = 5 * time.Millisecond
	cfg.Display.Grace = time.Millisecond
	cfg.Display.Seconds = model.MinDisplaySeconds
	cfg.Speech.Enabled = false
	return cfg
}

func TestEndToEnd(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	store.NewHandlers(store.NewMemory(), zap.NewNop()).Register(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx := context.Background()
	sender := storeclient.New(srv.URL)
	// already in the store before the terminal starts; never shown
	_, err := sender.Append(ctx, "1111", 1, "old")
	require.NoError(t, err)

	term, err := New(testConfig(t, srv.URL), zap.NewNop())
	require.NoError(t, err)
	addr, err := term.Listen()
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	errc := make(chan error, 1)
	go func() { errc <- term.Run(runCtx) }()

	require.Eventually(t, term.Poller().Ready, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), term.Poller().Watermark())

	_, err = sender.Append(ctx, "4829", 2, "n1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, ok := term.Scheduler().Session()
		return ok && s.Code == "4829"
	}, 2*time.Second, 2*time.Millisecond)

	resp, err := http.Get("http://" + addr.String() + "/api/v1/status")
	require.NoError(t, err)
	var st model.TerminalStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	resp.Body.Close()
	assert.Equal(t, int64(2), st.Watermark)

	require.Eventually(t, func() bool {
		_, showing := term.Scheduler().Session()
		return !showing && term.Scheduler().QueueLen() == 0
	}, 2*time.Second, 5*time.Millisecond, "cycle ends after the countdown")

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestListenError(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.API.Addr = "bad-address"
	term, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	_, err = term.Listen()
	assert.Error(t, err)
}
