package tcp

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfsbhawkins/gstd-1.x/engine"
	"github.com/cfsbhawkins/gstd-1.x/node"
	"github.com/cfsbhawkins/gstd-1.x/parser"
)

// freePort grabs an OS-assigned ephemeral port by briefly listening then
// closing, matching the convention net/http test helpers use in the pack.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func newTestServer(t *testing.T) (*Server, int) {
	t.Helper()
	root := node.AcquireSession(node.WithEngine(engine.NewSimulated()))
	t.Cleanup(node.ReleaseSession)
	p := parser.New(root)
	port := freePort(t)
	s := New("127.0.0.1", port, 4, p, nil)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { s.Stop(2 * time.Second) })
	return s, port
}

func sendCommand(t *testing.T, port int, cmd string) string {
	t.Helper()
	conn, err := net.DialTimeout("tcp", "127.0.0.1"+":"+strconv.Itoa(port), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(cmd))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString(0)
	require.NoError(t, err)
	return line[:len(line)-1]
}

func TestServer_PipelineCreateReadDeleteRoundTrip(t *testing.T) {
	_, port := newTestServer(t)

	out := sendCommand(t, port, "pipeline_create p0 fakesrc ! fakesink")
	assert.Contains(t, out, `"code":0`)

	out = sendCommand(t, port, "list_pipelines")
	assert.Contains(t, out, `"p0"`)

	out = sendCommand(t, port, "pipeline_delete p0")
	assert.Contains(t, out, `"code":0`)
}

func TestServer_UnknownCommandReturnsBadCommandEnvelope(t *testing.T) {
	_, port := newTestServer(t)
	out := sendCommand(t, port, "not_a_real_command")
	assert.Contains(t, out, `"code":2`)
}

func TestServer_StopIsIdempotentAndClosesListener(t *testing.T) {
	s, port := newTestServer(t)
	require.NoError(t, s.Stop(2*time.Second))
	require.NoError(t, s.Stop(2*time.Second))

	_, err := net.DialTimeout("tcp", "127.0.0.1"+":"+strconv.Itoa(port), 200*time.Millisecond)
	assert.Error(t, err, "listener must be closed after Stop")
}

func TestServer_MultipleCommandsOverOneConnection(t *testing.T) {
	_, port := newTestServer(t)
	conn, err := net.DialTimeout("tcp", "127.0.0.1"+":"+strconv.Itoa(port), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	reader := bufio.NewReader(conn)

	_, err = conn.Write([]byte("pipeline_create p0 fakesrc ! fakesink"))
	require.NoError(t, err)
	line1, err := reader.ReadString(0)
	require.NoError(t, err)
	assert.Contains(t, line1, `"code":0`)

	_, err = conn.Write([]byte("pipeline_delete p0"))
	require.NoError(t, err)
	line2, err := reader.ReadString(0)
	require.NoError(t, err)
	assert.Contains(t, line2, `"code":0`)
}
