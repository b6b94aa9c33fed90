package broker

import (
	"context"
	"testing"
	"time"

	"github.com/streamcenter/streamcenter/internal/errs"
	"github.com/streamcenter/streamcenter/internal/frame"
	"github.com/streamcenter/streamcenter/internal/observer"
)

func startBroker(t *testing.T) (*Broker, context.CancelFunc) {
	t.Helper()
	b := New(observer.Nop{})
	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)
	return b, cancel
}

func recvWithTimeout(t *testing.T, ch <-chan frame.MediaFrame) (frame.MediaFrame, bool) {
	t.Helper()
	select {
	case f, ok := <-ch:
		return f, ok
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return frame.MediaFrame{}, false
	}
}

func TestPublishSubscribeReplaysGOPThenLiveTails(t *testing.T) {
	b, cancel := startBroker(t)
	defer cancel()
	ctx := context.Background()
	id := frame.Identifier{App: "live", Name: "cam"}

	producer, err := b.Publish(ctx, id, frame.TypeLive, nil)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	producer <- frame.VideoConfig(0, []byte{0x01, 0x02})
	producer <- frame.Video(1, true, 0, []byte{0xAA}) // K0
	producer <- frame.Video(2, false, 0, []byte{0xBB}) // P1
	producer <- frame.Video(3, false, 0, []byte{0xCC}) // P2

	time.Sleep(50 * time.Millisecond) // let the producer pump catch up

	result, err := b.Subscribe(ctx, id, nil, true, true, 0)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	f, _ := recvWithTimeout(t, result.MediaReceiver)
	if f.Kind != frame.KindVideoConfig {
		t.Fatalf("first replayed frame kind = %v, want VideoConfig", f.Kind)
	}
	f, _ = recvWithTimeout(t, result.MediaReceiver)
	if f.Kind != frame.KindVideo || !f.IsKeyframe || f.TimestampNS != 1 {
		t.Fatalf("second replayed frame = %+v, want keyframe ts=1", f)
	}

	producer <- frame.Video(4, false, 0, []byte{0xDD}) // P4, live
	f, _ = recvWithTimeout(t, result.MediaReceiver)
	if f.TimestampNS != 2 {
		t.Fatalf("next replay frame ts = %d, want 2 (P1)", f.TimestampNS)
	}
}

func TestSubscribeUnknownStreamFails(t *testing.T) {
	b, cancel := startBroker(t)
	defer cancel()
	_, err := b.Subscribe(context.Background(), frame.Identifier{App: "x", Name: "y"}, nil, true, true, 0)
	var e *errs.Error
	if err == nil {
		t.Fatal("expected StreamMissing error")
	}
	if ee, ok := err.(*errs.Error); ok {
		e = ee
	}
	if e == nil || e.Kind() != errs.KindStreamMissing {
		t.Fatalf("err kind = %v, want StreamMissing", err)
	}
}

func TestPublishTwiceFailsAlreadyPublished(t *testing.T) {
	b, cancel := startBroker(t)
	defer cancel()
	ctx := context.Background()
	id := frame.Identifier{App: "live", Name: "dup"}

	if _, err := b.Publish(ctx, id, frame.TypeLive, nil); err != nil {
		t.Fatalf("first Publish: %v", err)
	}
	_, err := b.Publish(ctx, id, frame.TypeLive, nil)
	if err == nil {
		t.Fatal("expected AlreadyPublished error")
	}
}

func TestIdempotentTeardown(t *testing.T) {
	b, cancel := startBroker(t)
	defer cancel()
	ctx := context.Background()

	if err := b.Unsubscribe(ctx, frame.Identifier{App: "a", Name: "b"}, "unknown-id"); err != nil {
		t.Fatalf("Unsubscribe of unknown id should succeed, got %v", err)
	}
	if err := b.Unpublish(ctx, frame.Identifier{App: "a", Name: "b"}); err != nil {
		t.Fatalf("Unpublish of unknown stream should succeed, got %v", err)
	}
}

func TestUnpublishNotifiesSubscribers(t *testing.T) {
	b, cancel := startBroker(t)
	defer cancel()
	ctx := context.Background()
	id := frame.Identifier{App: "live", Name: "cam"}

	if _, err := b.Publish(ctx, id, frame.TypeLive, nil); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	result, err := b.Subscribe(ctx, id, nil, true, true, 0)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := b.Unpublish(ctx, id); err != nil {
		t.Fatalf("Unpublish: %v", err)
	}
	_, ok := recvWithTimeout(t, result.MediaReceiver)
	if ok {
		t.Fatal("expected subscriber channel to be closed after unpublish")
	}
}
