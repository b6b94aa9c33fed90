package base

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// interleavedFrameMagicByte marks a `$`-prefixed binary frame,
// distinguishing it from the ASCII of a request/response line.
const interleavedFrameMagicByte = 0x24

// InterleavedFrame carries one RTP or RTCP packet over the RTSP TCP control
// connection, framed as `$<channel:u8><length:u16 BE><payload>`.
type InterleavedFrame struct {
	Channel int
	Payload []byte
}

// Read decodes one InterleavedFrame. The leading magic byte must already be
// confirmed present by the caller (see PeekIsInterleavedFrame).
func (f *InterleavedFrame) Read(maxPayloadSize int, rb *bufio.Reader) error {
	var header [4]byte
	if _, err := io.ReadFull(rb, header[:]); err != nil {
		return err
	}
	if header[0] != interleavedFrameMagicByte {
		return fmt.Errorf("rtsp: invalid interleaved frame magic byte 0x%.2x", header[0])
	}
	payloadLen := int(binary.BigEndian.Uint16(header[2:]))
	if payloadLen > maxPayloadSize {
		return fmt.Errorf("rtsp: interleaved frame payload %d exceeds maximum %d", payloadLen, maxPayloadSize)
	}
	f.Channel = int(header[1])
	f.Payload = make([]byte, payloadLen)
	_, err := io.ReadFull(rb, f.Payload)
	return err
}

// Write encodes and writes the frame.
func (f InterleavedFrame) Write(w io.Writer) error {
	header := [4]byte{interleavedFrameMagicByte, byte(f.Channel), 0, 0}
	binary.BigEndian.PutUint16(header[2:], uint16(len(f.Payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(f.Payload)
	return err
}

// PeekIsInterleavedFrame reports whether the next byte on rb starts a `$`
// binary frame rather than a text request/response line, without consuming
// it.
func PeekIsInterleavedFrame(rb *bufio.Reader) (bool, error) {
	b, err := rb.Peek(1)
	if err != nil {
		return false, err
	}
	return b[0] == interleavedFrameMagicByte, nil
}
