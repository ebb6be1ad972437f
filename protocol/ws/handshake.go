// File: protocol/ws/handshake.go
// Package ws implements the RFC 6455 WebSocket handshake and frame
// codec, operating on the httpf.Request/Headers types already parsed
// by this engine's own HTTP framer instead of net/http.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package ws

import (
	"bytes"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/momentics/reactorhost/conn"
	"github.com/momentics/reactorhost/protocol/httpf"
)

const webSocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// PolicyRequestSentinel is the Flash cross-domain policy probe
// recognized before any HTTP parsing occurs.
const PolicyRequestSentinel = "<policy-file-request/>\x00"

// PolicyDocument is served verbatim in response to the sentinel.
const PolicyDocument = `<?xml version="1.0"?>
<cross-domain-policy>
  <allow-access-from domain="*" to-ports="*"/>
</cross-domain-policy>
` + "\x00"

var (
	ErrNotUpgrade     = errors.New("ws: not a websocket upgrade request")
	ErrMissingKey     = errors.New("ws: missing Sec-WebSocket-Key")
)

// AcceptKey computes base64(SHA1(key || GUID)).
func AcceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key))
	h.Write([]byte(webSocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// Handler is an httpf.Handler that upgrades a request to WebSocket,
// dispatching established connections to appHandler. On success it
// replaces c.Driver with a *Framer and c.Ctx with a fresh *Context;
// on failure it writes a 400 with Connection: Close.
func Handler(appHandler AppHandler) httpf.Handler {
	return func(c *conn.Connection, w *httpf.ResponseWriter, r *httpf.Request) {
		if !isUpgradeRequest(r) {
			w.SetStatus(400, "Bad Request")
			w.Close()
			return
		}
		key := r.Headers.Get("Sec-WebSocket-Key")
		if key == "" {
			w.SetStatus(400, "Bad Request")
			w.Close()
			return
		}

		w.SetStatus(101, "Switching Protocols")
		w.SetHeader("Upgrade", "websocket")
		w.SetHeader("Connection", "Upgrade")
		w.SetHeader("Sec-WebSocket-Accept", AcceptKey(key))
		if proto := r.Headers.Get("Sec-WebSocket-Protocol"); proto != "" {
			w.SetHeader("Sec-WebSocket-Protocol", proto)
		}

		ctx := &Context{}
		c.Ctx = ctx
		c.Driver = NewFramer(ctx, appHandler)
	}
}

func isUpgradeRequest(r *httpf.Request) bool {
	return r.Headers.Has("Connection", "Upgrade") && r.Headers.Has("Upgrade", "websocket")
}

// ClientKey generates the client side's Sec-WebSocket-Key: a 16-byte
// random nonce, base64-encoded.
func ClientKey() (string, error) {
	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(nonce[:]), nil
}

// ClientUpgradeRequest builds the upgrade request a connecting client
// writes before any frames, carrying key as its Sec-WebSocket-Key.
func ClientUpgradeRequest(host, path, key string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "GET %s HTTP/1.1\r\n", path)
	fmt.Fprintf(&b, "Host: %s\r\n", host)
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	fmt.Fprintf(&b, "Sec-WebSocket-Key: %s\r\n", key)
	b.WriteString("Sec-WebSocket-Version: 13\r\n")
	b.WriteString("\r\n")
	return b.Bytes()
}

// VerifyAccept reports whether the server's Sec-WebSocket-Accept value
// matches the digest expected for the key the client sent.
func VerifyAccept(key, accept string) bool {
	return accept != "" && accept == AcceptKey(key)
}
