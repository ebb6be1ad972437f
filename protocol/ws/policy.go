// File: protocol/ws/policy.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Flash cross-domain policy responder: the pre-handshake policy
// sentinel is recognised and served a static policy document. The
// sentinel is a bare byte string, not an HTTP request, so it is
// sniffed off the front of a fresh connection before any HTTP
// parsing happens (PolicySniffer), or served from a dedicated policy
// listener (PolicyFramer, conventionally port 843).

package ws

import (
	"github.com/momentics/reactorhost/conn"
)

// PolicyFramer answers the Flash policy-file-request sentinel and
// closes. It never reads past the sentinel.
type PolicyFramer struct{}

func (PolicyFramer) WantRead() bool  { return true }
func (PolicyFramer) WantWrite() bool { return false }

func (PolicyFramer) Drive(c *conn.Connection) error {
	if c.In.Len() < len(PolicyRequestSentinel) {
		return nil
	}
	got := c.In.Peek(len(PolicyRequestSentinel))
	match := string(got) == PolicyRequestSentinel
	c.In.ReleasePeek()
	c.In.Skip(len(PolicyRequestSentinel))

	if match {
		c.Out.Write([]byte(PolicyDocument))
	}
	c.Shutdown()
	return nil
}

// PolicySniffer peeks at the first bytes of a fresh connection: a
// policy sentinel is answered in place, anything else permanently
// hands the connection to next (normally the HTTP framer). The two
// are unambiguous from the first byte — no HTTP method starts with
// '<'.
type PolicySniffer struct {
	next conn.Driver
}

// WithPolicySniff wraps next so the policy sentinel is recognised
// before any HTTP parsing occurs.
func WithPolicySniff(next conn.Driver) *PolicySniffer {
	return &PolicySniffer{next: next}
}

func (s *PolicySniffer) WantRead() bool  { return true }
func (s *PolicySniffer) WantWrite() bool { return false }

func (s *PolicySniffer) Drive(c *conn.Connection) error {
	n := c.In.Len()
	if n == 0 {
		return nil
	}
	if n > len(PolicyRequestSentinel) {
		n = len(PolicyRequestSentinel)
	}
	got := c.In.Peek(n)
	isPrefix := string(got) == PolicyRequestSentinel[:n]
	c.In.ReleasePeek()

	if !isPrefix {
		c.Driver = s.next
		return s.next.Drive(c)
	}
	if n < len(PolicyRequestSentinel) {
		return nil // could still be either; wait for more bytes
	}

	c.In.Skip(len(PolicyRequestSentinel))
	c.Out.Write([]byte(PolicyDocument))
	c.Shutdown()
	return nil
}
