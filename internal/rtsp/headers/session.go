package headers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/streamcenter/streamcenter/internal/rtsp/base"
)

// Session is the `Session: <id>[;timeout=<seconds>]` header.
type Session struct {
	ID      string
	Timeout *uint
}

// Read decodes a Session header.
func (h *Session) Read(v base.HeaderValue) error {
	if len(v) == 0 {
		return fmt.Errorf("rtsp session: header not provided")
	}
	parts := strings.Split(v[0], ";")
	h.ID = parts[0]

	for _, kv := range parts[1:] {
		k, val, ok := strings.Cut(strings.TrimSpace(kv), "=")
		if !ok || k != "timeout" {
			continue
		}
		n, err := strconv.ParseUint(val, 10, 64)
		if err != nil {
			return fmt.Errorf("rtsp session: invalid timeout %q", val)
		}
		t := uint(n)
		h.Timeout = &t
	}
	return nil
}

// Write encodes a Session header.
func (h Session) Write() base.HeaderValue {
	s := h.ID
	if h.Timeout != nil {
		s += ";timeout=" + strconv.FormatUint(uint64(*h.Timeout), 10)
	}
	return base.HeaderValue{s}
}
