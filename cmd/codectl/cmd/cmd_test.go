package cmd

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/balaji-balu/codeboard/internal/store"
	"github.com/balaji-balu/codeboard/pkg/model"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestSendAndClear(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mem := store.NewMemory()
	r := gin.New()
	store.NewHandlers(mem, zap.NewNop()).Register(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	out, err := runCLI(t, "--store", srv.URL, "send", "  4829 ", "--node", "desk")
	require.NoError(t, err)
	assert.Contains(t, out, `sent "4829" as message 1`)

	resp, err := mem.Since(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "desk", resp.Messages[0].NodeID)

	_, err = runCLI(t, "--store", srv.URL, "send", "   ")
	assert.Error(t, err)

	_, err = runCLI(t, "--store", srv.URL, "clear")
	assert.Error(t, err, "needs --yes")

	out, err = runCLI(t, "--store", srv.URL, "clear", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "store cleared")
	n, _ := mem.Len(context.Background())
	assert.Zero(t, n)
}

func TestPrintStatus(t *testing.T) {
	color.NoColor = true
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	st := model.TerminalStatus{
		State:     "showing",
		Session:   &model.DisplaySession{Code: "4829", StartedAt: now.Add(-5 * time.Second), RemainingSeconds: model.Narrating},
		Queue:     []string{"A123", "B456"},
		Watermark: 12345,
		Failures:  2,
		Health: model.HealthSummary{
			Healthy:    1,
			Total:      2,
			Connection: model.ConnectionStale,
			LastPollAt: now.Add(-2 * time.Minute),
			Records: []model.NodeHealthRecord{
				{Endpoint: "local", Status: model.EndpointHealthy, LastCheckedAt: now.Add(-time.Minute)},
				{Endpoint: "lobby", Status: model.EndpointUnreachable, ConsecutiveFailures: 3, LastCheckedAt: now.Add(-time.Minute)},
			},
		},
		Advisory: &model.AdvisoryInfo{Reason: "stale", Message: "reload?"},
		Settings: model.DefaultSettings(),
	}

	var buf bytes.Buffer
	printStatus(&buf, st, now)
	s := buf.String()
	assert.Contains(t, s, "showing: 4829 (narrating, since 5 seconds ago)")
	assert.Contains(t, s, "queue: 2 [A123, B456]")
	assert.Contains(t, s, "feed: stale, watermark 12,345, last poll 2 minutes ago, 2 failed polls")
	assert.Contains(t, s, "nodes: 1/2 healthy")
	assert.Contains(t, s, "unreachable (3 failures)")
	assert.Contains(t, s, "advisory: reload? (stale)")
}

func TestConfigDump(t *testing.T) {
	out, err := runCLI(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "store:")
	assert.Contains(t, out, "seconds: 20")
}
