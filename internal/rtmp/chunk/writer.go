package chunk

import (
	"io"
)

// Writer splits outgoing RTMP messages into chunks at the negotiated peer
// chunk size.
type Writer struct {
	dst       io.Writer
	chunkSize uint32
}

// NewWriter builds a Writer with the RTMP default chunk size (128 bytes).
func NewWriter(dst io.Writer) *Writer {
	return &Writer{dst: dst, chunkSize: 128}
}

// SetChunkSize updates the outbound chunk size (our own SetChunkSize
// control message changes this locally once sent).
func (w *Writer) SetChunkSize(size uint32) {
	if size > 0 {
		w.chunkSize = size
	}
}

// WriteMessage always emits a Format0 header for the first chunk (simplest
// correct encoding: every message stands alone) followed by Format3
// continuation chunks: a message of length L at peer chunk size C always
// becomes ceil(L/C) chunks.
func (w *Writer) WriteMessage(csid uint32, typeID uint8, streamID uint32, timestamp uint32, payload []byte) error {
	header := append(writeBasicHeader(Format0, csid), encodeMessageHeader(Format0, timestamp, uint32(len(payload)), typeID, streamID)...)
	var extTS []byte
	if timestamp >= extendedTimestampMarker {
		extTS = writeExtendedTimestamp(timestamp)
	}

	if _, err := w.dst.Write(header); err != nil {
		return err
	}
	if extTS != nil {
		if _, err := w.dst.Write(extTS); err != nil {
			return err
		}
	}

	cont := writeBasicHeader(Format3, csid)
	remaining := payload
	first := true
	for len(remaining) > 0 || first {
		first = false
		n := uint32(len(remaining))
		if n > w.chunkSize {
			n = w.chunkSize
		}
		if _, err := w.dst.Write(remaining[:n]); err != nil {
			return err
		}
		remaining = remaining[n:]
		if len(remaining) == 0 {
			break
		}
		if _, err := w.dst.Write(cont); err != nil {
			return err
		}
		if extTS != nil {
			if _, err := w.dst.Write(extTS); err != nil {
				return err
			}
		}
	}
	return nil
}
