// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package tcp

import (
	"bufio"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/momentics/reactorhost/conn"
	"github.com/momentics/reactorhost/core/queue"
	"github.com/momentics/reactorhost/core/timer"
	"github.com/momentics/reactorhost/core/workerpool"
	"github.com/momentics/reactorhost/protocol/httpf"
	"github.com/momentics/reactorhost/reactor"
	"github.com/momentics/reactorhost/registry"
)

// boundAddr reads back the ephemeral port the kernel assigned a
// socket bound to 127.0.0.1:0, so the test client can dial it.
func boundAddr(fd int) (string, error) {
	sa, err := syscall.Getsockname(fd)
	if err != nil {
		return "", err
	}
	v4, ok := sa.(*syscall.SockaddrInet4)
	if !ok {
		return "", fmt.Errorf("unexpected sockaddr type %T", sa)
	}
	return fmt.Sprintf("%d.%d.%d.%d:%d", v4.Addr[0], v4.Addr[1], v4.Addr[2], v4.Addr[3], v4.Port), nil
}

// TestAcceptorServesHTTPOverLoopback exercises the full stack end to
// end: Acceptor -> Reactor -> WorkerPool -> conn.Connection ->
// httpf.Framer -> registered handler, driven by an actual loopback
// TCP client.
func TestAcceptorServesHTTPOverLoopback(t *testing.T) {
	wheel := timer.New(nil)
	tasks := queue.New(nil)
	pool := workerpool.New(2, tasks, wheel)
	defer pool.Close()

	re, err := reactor.New(pool)
	require.NoError(t, err)
	defer re.Shutdown()

	reg := registry.New()
	reg.Register("/ping", httpf.Handler(func(c *conn.Connection, w *httpf.ResponseWriter, r *httpf.Request) {
		w.SetHeader("Content-Type", "text/plain")
		w.Write([]byte("pong"))
	}))
	lookup := registry.Typed[httpf.Handler](reg)

	newConn := func(fd int, peer string) *conn.Connection {
		c := conn.New(fd, conn.KindTCPServer, peer, wheel, 4096, 4096)
		c.Driver = httpf.New(lookup)
		return c
	}

	acc, err := Listen("127.0.0.1:0", 128, wheel, newConn)
	require.NoError(t, err)
	require.NoError(t, acc.Register(re))

	go re.Run()

	addr, err := boundAddr(acc.fd)
	require.NoError(t, err)

	client, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write([]byte("GET /ping HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	r := bufio.NewReader(client)
	status, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "HTTP/1.1 200 OK\r\n", status)

	headers := map[string]string{}
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if line == "\r\n" {
			break
		}
		parts := splitHeaderLine(line)
		headers[parts[0]] = parts[1]
	}
	require.Equal(t, "4", headers["Content-Length"])
	require.Equal(t, "text/plain", headers["Content-Type"])

	body := make([]byte, 4)
	_, err = r.Read(body)
	require.NoError(t, err)
	require.Equal(t, "pong", string(body))
}

func splitHeaderLine(line string) [2]string {
	for i := 0; i < len(line); i++ {
		if line[i] == ':' {
			name := line[:i]
			value := line[i+1:]
			for len(value) > 0 && (value[0] == ' ') {
				value = value[1:]
			}
			for len(value) > 0 && (value[len(value)-1] == '\n' || value[len(value)-1] == '\r') {
				value = value[:len(value)-1]
			}
			return [2]string{name, value}
		}
	}
	return [2]string{line, ""}
}
