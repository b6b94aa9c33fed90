// Package chunk implements the RTMP chunk-stream codec: the handshake, the
// four chunk header formats, message reassembly, and the protocol-control
// message types.
package chunk

import (
	"crypto/rand"
	"encoding/binary"
	"io"

	"github.com/streamcenter/streamcenter/internal/errs"
)

// HandshakeSize is the size of C0+C1 and of S0+S1: one version byte plus a
// 1536-byte handshake block. S2 and C2 are 1536 bytes each.
const HandshakeSize = 1 + 1536

const rtmpVersion = 3

// ServerHandshake performs the simple (non-HMAC) RTMP handshake as the
// server side: read C0+C1, write S0+S1+S2, read C2. The complex HMAC
// variant is accepted silently by never validating C1's digest; simple
// mode is the contract.
func ServerHandshake(rw io.ReadWriter) error {
	c0c1 := make([]byte, HandshakeSize)
	if _, err := io.ReadFull(rw, c0c1); err != nil {
		return errs.PeerClosed("rtmp handshake: reading C0+C1: %v", err)
	}
	if c0c1[0] != rtmpVersion {
		return errs.WireFormat("rtmp handshake: unsupported version %d", c0c1[0])
	}
	c1 := c0c1[1:]

	s0s1s2 := make([]byte, HandshakeSize+1536)
	s0s1s2[0] = rtmpVersion

	s1 := s0s1s2[1:1537]
	binary.BigEndian.PutUint32(s1[0:4], 0)
	binary.BigEndian.PutUint32(s1[4:8], 0)
	if _, err := rand.Read(s1[8:]); err != nil {
		return errs.WireFormat("rtmp handshake: generating S1 random: %v", err)
	}

	s2 := s0s1s2[1537:]
	copy(s2, c1)

	if _, err := rw.Write(s0s1s2); err != nil {
		return errs.PeerClosed("rtmp handshake: writing S0+S1+S2: %v", err)
	}

	c2 := make([]byte, 1536)
	if _, err := io.ReadFull(rw, c2); err != nil {
		return errs.PeerClosed("rtmp handshake: reading C2: %v", err)
	}
	return nil
}
