// File: transport/tcp/addr.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package tcp

import (
	"fmt"
	"net"
	"strconv"
	"syscall"
)

// resolveBindAddr parses a host:port string into a syscall.Sockaddr
// and the matching socket domain, preferring IPv4 and falling back to
// IPv6 the way net.Listen's address resolution does.
func resolveBindAddr(addr string) (syscall.Sockaddr, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, 0, fmt.Errorf("tcp: invalid address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, 0, fmt.Errorf("tcp: invalid port %q: %w", portStr, err)
	}

	if host == "" {
		return &syscall.SockaddrInet4{Port: port}, syscall.AF_INET, nil
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return nil, 0, fmt.Errorf("tcp: address %q is not a literal IP (use resolver for hostnames)", host)
	}
	if v4 := ip.To4(); v4 != nil {
		sa := &syscall.SockaddrInet4{Port: port}
		copy(sa.Addr[:], v4)
		return sa, syscall.AF_INET, nil
	}
	v6 := ip.To16()
	sa := &syscall.SockaddrInet6{Port: port}
	copy(sa.Addr[:], v6)
	return sa, syscall.AF_INET6, nil
}
