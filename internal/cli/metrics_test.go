package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRouter(t *testing.T) {
	srv := httptest.NewServer(newMetricsRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok\n", string(body))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")

	resp, err = http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsServerLifecycle(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m, err := startMetrics("127.0.0.1:0", logger)
	require.NoError(t, err)

	resp, err := http.Get("http://" + m.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, m.Wait(ctx))
	assert.NoError(t, m.Shutdown())
}

func TestMetricsListenError(t *testing.T) {
	_, err := startMetrics("256.0.0.1:bad", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics listen")
}

func TestRunCommand_ServesMetrics(t *testing.T) {
	base := planShift(t, false)

	out, _, err := execute(t, "run", shiftSpecs, "--plan", base, "--metrics-addr", "127.0.0.1:0")
	require.NoError(t, err)
	assert.Contains(t, out, "checksum(t=4) = 378")
}

// trackedListener closes accepted once the server asks for a second
// connection, by which point it tracks the first.
type trackedListener struct {
	net.Listener
	calls    atomic.Int32
	accepted chan struct{}
}

func (l *trackedListener) Accept() (net.Conn, error) {
	if l.calls.Add(1) == 2 {
		close(l.accepted)
	}
	return l.Listener.Accept()
}

func TestStopMetricsLogsShutdownFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	tl := &trackedListener{Listener: ln, accepted: make(chan struct{})}

	var logs bytes.Buffer
	m := serveMetrics(tl, slog.New(slog.NewTextHandler(&logs, nil)))
	m.timeout = 10 * time.Millisecond

	// A request whose headers never finish keeps the connection busy.
	conn, err := net.Dial("tcp", m.Addr())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("GET /healthz HTTP/1.1\r\n"))
	require.NoError(t, err)
	<-tl.accepted

	stopMetrics(m)
	assert.Contains(t, logs.String(), "metrics shutdown failed")
	assert.Contains(t, logs.String(), context.DeadlineExceeded.Error())
}
