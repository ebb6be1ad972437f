//go:build linux

// File: reactor/epoll_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux epoll(7) backend. Edge-triggered throughout: callers loop
// reads/writes until EAGAIN, which is why Interest only needs to be
// recomputed on state change rather than after every byte moved.

package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

type epollBackend struct {
	fd int
}

func newBackend() (backend, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &epollBackend{fd: fd}, nil
}

func toEpollEvents(mask EventMask) uint32 {
	// EPOLLRDHUP is opt-in, unlike HUP/ERR; request it always so
	// half-close is observed as soon as the peer shuts its write side.
	var e uint32 = unix.EPOLLET | unix.EPOLLRDHUP
	if mask&Readable != 0 {
		e |= unix.EPOLLIN
	}
	if mask&Writable != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func fromEpollEvents(e uint32) EventMask {
	var m EventMask
	if e&unix.EPOLLIN != 0 {
		m |= Readable
	}
	if e&unix.EPOLLOUT != 0 {
		m |= Writable
	}
	if e&unix.EPOLLHUP != 0 {
		m |= HangUp
	}
	if e&unix.EPOLLRDHUP != 0 {
		m |= HalfHangUp
	}
	if e&unix.EPOLLERR != 0 {
		m |= Error
	}
	return m
}

func (b *epollBackend) Add(fd uintptr, mask EventMask) error {
	ev := unix.EpollEvent{Events: toEpollEvents(mask), Fd: int32(fd)}
	return unix.EpollCtl(b.fd, unix.EPOLL_CTL_ADD, int(fd), &ev)
}

func (b *epollBackend) Modify(fd uintptr, mask EventMask) error {
	ev := unix.EpollEvent{Events: toEpollEvents(mask), Fd: int32(fd)}
	return unix.EpollCtl(b.fd, unix.EPOLL_CTL_MOD, int(fd), &ev)
}

func (b *epollBackend) Del(fd uintptr) error {
	return unix.EpollCtl(b.fd, unix.EPOLL_CTL_DEL, int(fd), nil)
}

func (b *epollBackend) Wait(timeoutMs int) ([]readyEvent, error) {
	const maxEvents = 256
	var raw [maxEvents]unix.EpollEvent

	n, err := unix.EpollWait(b.fd, raw[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("epoll_wait: %w", err)
	}
	out := make([]readyEvent, n)
	for i := 0; i < n; i++ {
		out[i] = readyEvent{
			fd:   uintptr(raw[i].Fd),
			mask: fromEpollEvents(raw[i].Events),
		}
	}
	return out, nil
}

func (b *epollBackend) Close() error {
	return unix.Close(b.fd)
}
