// File: protocol/ws/frame.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Frame codec, operating directly on a Connection's Buffer; the
// conn.Driver that drives it is in driver.go.

package ws

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
)

const (
	opContinuation = 0x0
	opText         = 0x1
	opBinary       = 0x2
	opClose        = 0x8
	opPing         = 0x9
	opPong         = 0xA

	finBit  = 0x80
	maskBit = 0x80

	// RFC 6455 close codes this framer emits.
	closeNormal          = 1000
	closeProtocolError   = 1003
	closePolicyViolation = 1008
	closeMessageTooBig   = 1009
)

// Context is the per-connection WebSocket state installed as c.Ctx
// once the handshake succeeds.
type Context struct {
	closeSent bool
}

// AppHandler receives fully decoded application frames (text/binary).
type AppHandler func(c FrameSender, opcode byte, payload []byte)

// FrameSender lets an AppHandler push frames back without reaching
// into conn internals.
type FrameSender interface {
	SendText(payload []byte)
	SendBinary(payload []byte)
}

// decodedFrame is one parsed frame header plus its (already unmasked)
// payload.
type decodedFrame struct {
	fin     bool
	opcode  byte
	payload []byte
}

// maxFramePayload bounds a single frame to the inbound buffer's grow
// limit; a declared length past this closes the peer with 1009.
const maxFramePayload = 4 * 1024 * 1024

var (
	errIncomplete = errors.New("ws: incomplete frame")
	errTooBig     = errors.New("ws: frame exceeds payload limit")
)

// decodeFrame parses one frame out of data, returning the frame, the
// number of bytes consumed, and errIncomplete if more bytes are needed.
func decodeFrame(data []byte) (decodedFrame, int, error) {
	if len(data) < 2 {
		return decodedFrame{}, 0, errIncomplete
	}
	fin := data[0]&finBit != 0
	opcode := data[0] & 0x0F
	masked := data[1]&maskBit != 0
	payloadLen := int64(data[1] & 0x7F)

	off := 2
	switch payloadLen {
	case 126:
		if len(data) < off+2 {
			return decodedFrame{}, 0, errIncomplete
		}
		payloadLen = int64(binary.BigEndian.Uint16(data[off:]))
		off += 2
	case 127:
		if len(data) < off+8 {
			return decodedFrame{}, 0, errIncomplete
		}
		payloadLen = int64(binary.BigEndian.Uint64(data[off:]))
		off += 8
	}

	if payloadLen > maxFramePayload {
		return decodedFrame{}, 0, errTooBig
	}

	var maskKey [4]byte
	if masked {
		if len(data) < off+4 {
			return decodedFrame{}, 0, errIncomplete
		}
		copy(maskKey[:], data[off:off+4])
		off += 4
	}

	if int64(len(data)-off) < payloadLen {
		return decodedFrame{}, 0, errIncomplete
	}
	payload := data[off : off+int(payloadLen)]
	if masked {
		unmaskInPlace(payload, maskKey)
	}

	return decodedFrame{fin: fin, opcode: opcode, payload: payload}, off + int(payloadLen), nil
}

func unmaskInPlace(buf []byte, key [4]byte) {
	for i := range buf {
		buf[i] ^= key[i%4]
	}
}

// encodeFrame appends one frame to dst. Server-originated frames are
// never masked; client-originated frames are masked with a random
// key.
func encodeFrame(dst []byte, opcode byte, payload []byte, mask bool) []byte {
	dst = append(dst, finBit|opcode)

	var maskFlag byte
	if mask {
		maskFlag = maskBit
	}
	switch {
	case len(payload) <= 125:
		dst = append(dst, byte(len(payload))|maskFlag)
	case len(payload) <= 0xFFFF:
		dst = append(dst, 126|maskFlag)
		var ext [2]byte
		binary.BigEndian.PutUint16(ext[:], uint16(len(payload)))
		dst = append(dst, ext[:]...)
	default:
		dst = append(dst, 127|maskFlag)
		var ext [8]byte
		binary.BigEndian.PutUint64(ext[:], uint64(len(payload)))
		dst = append(dst, ext[:]...)
	}

	if mask {
		var key [4]byte
		_, _ = rand.Read(key[:])
		dst = append(dst, key[:]...)
		masked := make([]byte, len(payload))
		copy(masked, payload)
		unmaskInPlace(masked, key)
		dst = append(dst, masked...)
		return dst
	}

	return append(dst, payload...)
}
