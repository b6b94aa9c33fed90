package chunk

import (
	"bytes"
	"testing"
)

func TestReassemblyRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB, 0xCD, 0xEF}, 500) // 1500 bytes

	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.SetChunkSize(128)
	if err := w.WriteMessage(4, TypeVideo, 1, 12345, payload); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	r := NewReader(&buf)
	r.SetChunkSize(128)
	msg, _, err := r.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if msg.TypeID != TypeVideo || msg.StreamID != 1 || msg.Timestamp != 12345 {
		t.Fatalf("header mismatch: %+v", msg)
	}
	if !bytes.Equal(msg.Payload, payload) {
		t.Fatalf("payload mismatch: got %d bytes, want %d", len(msg.Payload), len(payload))
	}
}

func TestDistinctChunkStreamsReassembleIndependently(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.SetChunkSize(64)

	p1 := bytes.Repeat([]byte{0x01}, 200)
	p2 := bytes.Repeat([]byte{0x02}, 90)

	if err := w.WriteMessage(4, TypeVideo, 1, 10, p1); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteMessage(5, TypeAudio, 1, 20, p2); err != nil {
		t.Fatal(err)
	}

	r := NewReader(&buf)
	r.SetChunkSize(64)

	m1, _, err := r.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(m1.Payload, p1) {
		t.Fatalf("first message payload mismatch (len %d want %d)", len(m1.Payload), len(p1))
	}

	m2, _, err := r.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(m2.Payload, p2) {
		t.Fatalf("second message payload mismatch (len %d want %d)", len(m2.Payload), len(p2))
	}
}

func TestBasicHeaderCSIDRanges(t *testing.T) {
	cases := []uint32{2, 63, 64, 319, 320, 65599}
	for _, csid := range cases {
		encoded := writeBasicHeader(Format0, csid)
		buf := bytes.NewReader(encoded)
		format, got, err := readBasicHeader(buf)
		if err != nil {
			t.Fatalf("csid %d: %v", csid, err)
		}
		if format != Format0 || got != csid {
			t.Fatalf("csid %d round-trip mismatch: got %d", csid, got)
		}
	}
}
