package daemon

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/chatrelay/internal/server"
)

func newTestProgram(t *testing.T) *Program {
	t.Helper()
	t.Setenv("PORT", "127.0.0.1:0")
	t.Setenv("SHUTDOWN_GRACE", "0s")
	t.Setenv("LOG_LEVEL", "error")

	prg := New()
	require.NoError(t, prg.Init(nil))
	return prg
}

func TestProgram_Lifecycle(t *testing.T) {
	req := require.New(t)
	prg := newTestProgram(t)
	req.NoError(prg.Start())
	t.Cleanup(func() { _ = prg.Stop() })

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + prg.Addr() + "/health")
	req.NoError(err)
	defer func() { _ = resp.Body.Close() }()
	req.Equal(http.StatusOK, resp.StatusCode)

	var body server.HealthResponse
	req.NoError(json.NewDecoder(resp.Body).Decode(&body))
	req.Equal("ok", body.Status)
	req.Zero(body.ActiveUsers)

	req.NoError(prg.Stop())
	_, err = client.Get("http://" + prg.Addr() + "/health")
	req.Error(err)
}

func TestProgram_InitRejectsBadConfig(t *testing.T) {
	t.Setenv("RATE_LIMIT_WINDOW", "-1s")
	require.Error(t, New().Init(nil))
}

func TestProgram_StartFailsOnBoundPort(t *testing.T) {
	req := require.New(t)
	first := newTestProgram(t)
	req.NoError(first.Start())
	t.Cleanup(func() { _ = first.Stop() })

	t.Setenv("PORT", first.Addr())
	second := New()
	req.NoError(second.Init(nil))
	req.Error(second.Start())
}

func TestProgram_StopBeforeStart(t *testing.T) {
	require.NoError(t, New().Stop())
}
