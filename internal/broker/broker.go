// Package broker implements the Stream Center: the single-owner registry
// mapping stream identities to producers and subscribers. Every mutation
// of the registry happens on one goroutine driven by an event channel;
// RTMP and RTSP sessions never touch the registry directly, they only
// send events and read the results back.
package broker

import (
	"context"

	"github.com/google/uuid"

	"github.com/streamcenter/streamcenter/internal/errs"
	"github.com/streamcenter/streamcenter/internal/frame"
	"github.com/streamcenter/streamcenter/internal/observer"
)

// producerChannelSize and subscriberChannelSize bound the producer->broker
// and broker->subscriber channels.
const (
	producerChannelSize   = 1024
	subscriberChannelSize = 256
)

// PublishContext carries the free-form string map a publisher session
// attaches at publish time.
type PublishContext map[string]string

// subscriberRecord is the broker's bookkeeping for one subscriber.
type subscriberRecord struct {
	subscribeID string
	mediaSender chan frame.MediaFrame
	wantsAudio  bool
	wantsVideo  bool
	joinedAtNS  int64
	dropCount   uint64
}

// streamRecord is the broker's bookkeeping for one published stream.
type streamRecord struct {
	id             frame.Identifier
	streamType     frame.Type
	publishContext PublishContext
	producerSender chan frame.MediaFrame
	subscribers    map[string]*subscriberRecord
	subscribeOrder []string
	gop            *gopCache
}

// Broker is the Stream Center. Construct with New and call Run in its own
// goroutine; every other method sends an event over a channel and blocks
// for the reply, so they are safe to call concurrently from any number of
// session goroutines.
type Broker struct {
	events  chan any
	obs     observer.Observer
	streams map[frame.Identifier]*streamRecord
}

// New builds a Broker. obs may be observer.Nop{}.
func New(obs observer.Observer) *Broker {
	if obs == nil {
		obs = observer.Nop{}
	}
	return &Broker{
		events:  make(chan any, 64),
		obs:     obs,
		streams: make(map[frame.Identifier]*streamRecord),
	}
}

// Run drives the broker's event loop until ctx is cancelled. It must run on
// exactly one goroutine for the lifetime of the Broker.
func (b *Broker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.events:
			b.handle(ev)
		}
	}
}

type publishReq struct {
	id         frame.Identifier
	streamType frame.Type
	ctx        PublishContext
	reply      chan publishReply
}
type publishReply struct {
	producer chan<- frame.MediaFrame
	err      error
}

type unpublishReq struct {
	id    frame.Identifier
	reply chan error
}

type subscribeReq struct {
	id        frame.Identifier
	ctx       PublishContext
	wantAudio bool
	wantVideo bool
	nowNS     int64
	reply     chan subscribeReply
}

// SubscribeResult is what Subscribe returns on success.
type SubscribeResult struct {
	SubscribeID   string
	MediaReceiver <-chan frame.MediaFrame
	HasAudio      bool
	HasVideo      bool
	StreamType    frame.Type
}

type subscribeReply struct {
	result SubscribeResult
	err    error
}

type describeReq struct {
	id    frame.Identifier
	reply chan describeReply
}

// DescribeResult is a read-only snapshot of a published stream's current
// configuration, enough to render an SDP answer without creating a
// subscriber.
type DescribeResult struct {
	StreamType  frame.Type
	VideoConfig *frame.MediaFrame // nil if no video track has published yet
	AudioConfig *frame.MediaFrame // nil if no audio track has published yet
}

type describeReply struct {
	result DescribeResult
	err    error
}

type unsubscribeReq struct {
	id          frame.Identifier
	subscribeID string
	reply       chan error
}

type frameReq struct {
	id frame.Identifier
	f  frame.MediaFrame
}

// Publish registers a new stream. Fails with errs.AlreadyPublished if the
// identifier is already live. The returned sender is closed by Unpublish;
// callers must not send on it once they have asked for the unpublish.
func (b *Broker) Publish(ctx context.Context, id frame.Identifier, streamType frame.Type, pctx PublishContext) (chan<- frame.MediaFrame, error) {
	req := publishReq{id: id, streamType: streamType, ctx: pctx, reply: make(chan publishReply, 1)}
	select {
	case b.events <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-req.reply:
		return r.producer, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Unpublish drops a stream. Unpublishing an unknown id is a no-op success.
func (b *Broker) Unpublish(ctx context.Context, id frame.Identifier) error {
	req := unpublishReq{id: id, reply: make(chan error, 1)}
	select {
	case b.events <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe joins stream id, replaying its current GOP snapshot before
// live-tailing. Fails with errs.StreamMissing if id is not published.
func (b *Broker) Subscribe(ctx context.Context, id frame.Identifier, pctx PublishContext, wantAudio, wantVideo bool, nowNS int64) (SubscribeResult, error) {
	req := subscribeReq{id: id, ctx: pctx, wantAudio: wantAudio, wantVideo: wantVideo, nowNS: nowNS, reply: make(chan subscribeReply, 1)}
	select {
	case b.events <- req:
	case <-ctx.Done():
		return SubscribeResult{}, ctx.Err()
	}
	select {
	case r := <-req.reply:
		return r.result, r.err
	case <-ctx.Done():
		return SubscribeResult{}, ctx.Err()
	}
}

// Describe returns a read-only snapshot of id's current configuration.
// Fails with errs.StreamMissing if id is not published.
func (b *Broker) Describe(ctx context.Context, id frame.Identifier) (DescribeResult, error) {
	req := describeReq{id: id, reply: make(chan describeReply, 1)}
	select {
	case b.events <- req:
	case <-ctx.Done():
		return DescribeResult{}, ctx.Err()
	}
	select {
	case r := <-req.reply:
		return r.result, r.err
	case <-ctx.Done():
		return DescribeResult{}, ctx.Err()
	}
}

// Unsubscribe drops a subscriber. Unsubscribing an unknown id is a no-op
// success.
func (b *Broker) Unsubscribe(ctx context.Context, id frame.Identifier, subscribeID string) error {
	req := unsubscribeReq{id: id, subscribeID: subscribeID, reply: make(chan error, 1)}
	select {
	case b.events <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Broker) handle(ev any) {
	switch r := ev.(type) {
	case publishReq:
		b.handlePublish(r)
	case unpublishReq:
		b.handleUnpublish(r)
	case subscribeReq:
		b.handleSubscribe(r)
	case describeReq:
		b.handleDescribe(r)
	case unsubscribeReq:
		b.handleUnsubscribe(r)
	case frameReq:
		b.handleFrame(r)
	}
}

func (b *Broker) handlePublish(r publishReq) {
	if _, ok := b.streams[r.id]; ok {
		r.reply <- publishReply{err: errs.AlreadyPublished(r.id.App, r.id.Name)}
		return
	}
	sr := &streamRecord{
		id:             r.id,
		streamType:     r.streamType,
		publishContext: r.ctx,
		producerSender: make(chan frame.MediaFrame, producerChannelSize),
		subscribers:    make(map[string]*subscriberRecord),
		gop:            newGOPCache(),
	}
	b.streams[r.id] = sr
	b.obs.StreamPublished(r.id.App, r.id.Name)

	// Drain the producer channel on a dedicated goroutine and re-enter the
	// event loop as frameReq events, so the producer's sender never
	// contends with registry mutation and every frame still lands on the
	// single owner goroutine in submission order.
	go b.pump(r.id, sr.producerSender)

	r.reply <- publishReply{producer: sr.producerSender}
}

func (b *Broker) pump(id frame.Identifier, ch <-chan frame.MediaFrame) {
	for f := range ch {
		b.events <- frameReq{id: id, f: f}
	}
}

func (b *Broker) handleUnpublish(r unpublishReq) {
	sr, ok := b.streams[r.id]
	if !ok {
		r.reply <- nil
		return
	}
	for _, sub := range sr.subscribers {
		close(sub.mediaSender)
	}
	// Ends the pump goroutine. Publishers stop sending before they call
	// Unpublish (the reply only arrives after this close has happened).
	close(sr.producerSender)
	delete(b.streams, r.id)
	b.obs.StreamUnpublished(r.id.App, r.id.Name)
	r.reply <- nil
}

func (b *Broker) handleSubscribe(r subscribeReq) {
	sr, ok := b.streams[r.id]
	if !ok {
		r.reply <- subscribeReply{err: errs.NotFound(r.id.App, r.id.Name)}
		return
	}

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	sub := &subscriberRecord{
		subscribeID: id.String(),
		mediaSender: make(chan frame.MediaFrame, subscriberChannelSize),
		wantsAudio:  r.wantAudio,
		wantsVideo:  r.wantVideo,
		joinedAtNS:  r.nowNS,
	}
	sr.subscribers[sub.subscribeID] = sub
	sr.subscribeOrder = append(sr.subscribeOrder, sub.subscribeID)

	for _, f := range sr.gop.replay() {
		if !wants(sub, f) {
			continue
		}
		select {
		case sub.mediaSender <- f:
		default:
			sub.dropCount++
			b.obs.FrameDropped(r.id.App, r.id.Name, sub.subscribeID, "replay buffer full")
		}
	}

	b.obs.StreamSubscribed(r.id.App, r.id.Name, sub.subscribeID)
	r.reply <- subscribeReply{result: SubscribeResult{
		SubscribeID:   sub.subscribeID,
		MediaReceiver: sub.mediaSender,
		HasAudio:      r.wantAudio,
		HasVideo:      r.wantVideo,
		StreamType:    sr.streamType,
	}}
}

func (b *Broker) handleDescribe(r describeReq) {
	sr, ok := b.streams[r.id]
	if !ok {
		r.reply <- describeReply{err: errs.NotFound(r.id.App, r.id.Name)}
		return
	}
	r.reply <- describeReply{result: DescribeResult{
		StreamType:  sr.streamType,
		VideoConfig: sr.gop.videoConfig,
		AudioConfig: sr.gop.audioConfig,
	}}
}

func (b *Broker) handleUnsubscribe(r unsubscribeReq) {
	sr, ok := b.streams[r.id]
	if !ok {
		r.reply <- nil
		return
	}
	sub, ok := sr.subscribers[r.subscribeID]
	if !ok {
		r.reply <- nil
		return
	}
	delete(sr.subscribers, r.subscribeID)
	sr.subscribeOrder = removeString(sr.subscribeOrder, r.subscribeID)
	close(sub.mediaSender)
	b.obs.StreamUnsubscribed(r.id.App, r.id.Name, r.subscribeID)
	r.reply <- nil
}

func (b *Broker) handleFrame(r frameReq) {
	sr, ok := b.streams[r.id]
	if !ok {
		return
	}
	sr.gop.update(r.f)

	for _, subID := range sr.subscribeOrder {
		sub, ok := sr.subscribers[subID]
		if !ok || !wants(sub, r.f) {
			continue
		}
		select {
		case sub.mediaSender <- r.f:
		default:
			sub.dropCount++
			b.obs.FrameDropped(r.id.App, r.id.Name, sub.subscribeID, "subscriber channel full")
		}
	}
}

func wants(sub *subscriberRecord, f frame.MediaFrame) bool {
	switch f.Kind {
	case frame.KindVideoConfig, frame.KindVideo:
		return sub.wantsVideo
	case frame.KindAudioConfig, frame.KindAudio:
		return sub.wantsAudio
	default:
		return true
	}
}

func removeString(s []string, v string) []string {
	for i, x := range s {
		if x == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}
