package broker

import "github.com/streamcenter/streamcenter/internal/frame"

// defaultGOPMaxFrames and defaultGOPMaxBytes bound the trailing buffer.
const (
	defaultGOPMaxFrames = 600
	defaultGOPMaxBytes  = 32 * 1024 * 1024
)

// gopCache is the per-stream fast-join snapshot: the latest configs and
// metadata plus the trailing frames from the last keyframe onward.
// It is owned exclusively by the broker's event loop goroutine; nothing
// else ever touches it.
type gopCache struct {
	maxFrames int
	maxBytes  int

	videoConfig *frame.MediaFrame
	audioConfig *frame.MediaFrame
	script      *frame.MediaFrame

	// buf holds every frame from the most recent keyframe (inclusive)
	// forward. It is empty until the first keyframe is seen.
	buf      []frame.MediaFrame
	bufBytes int
}

func newGOPCache() *gopCache {
	return &gopCache{maxFrames: defaultGOPMaxFrames, maxBytes: defaultGOPMaxBytes}
}

// update folds one producer frame into the cache; callers read back
// configs/buf directly afterward.
func (g *gopCache) update(f frame.MediaFrame) {
	switch f.Kind {
	case frame.KindVideoConfig:
		c := f
		g.videoConfig = &c
		g.buf = nil
		g.bufBytes = 0

	case frame.KindAudioConfig:
		c := f
		g.audioConfig = &c

	case frame.KindScript:
		c := f
		g.script = &c

	case frame.KindVideo:
		if f.IsKeyframe {
			g.buf = nil
			g.bufBytes = 0
		}
		if f.IsKeyframe || g.haveKeyframe() {
			g.append(f)
		}

	case frame.KindAudio:
		if g.haveKeyframe() {
			g.append(f)
		}
	}
}

func (g *gopCache) haveKeyframe() bool {
	return len(g.buf) > 0 && g.buf[0].Kind == frame.KindVideo && g.buf[0].IsKeyframe
}

// append adds f to the trailing buffer, then evicts down to bounds. The
// keyframe at index 0 is never evicted: on overflow the whole buffer is
// replaced by just the newest keyframe group found so far.
func (g *gopCache) append(f frame.MediaFrame) {
	g.buf = append(g.buf, f)
	g.bufBytes += f.ApproxSize()

	if len(g.buf) <= g.maxFrames && g.bufBytes <= g.maxBytes {
		return
	}

	// find the most recent keyframe in the buffer and keep only from there.
	lastKeyIdx := -1
	for i := len(g.buf) - 1; i >= 0; i-- {
		if g.buf[i].Kind == frame.KindVideo && g.buf[i].IsKeyframe {
			lastKeyIdx = i
			break
		}
	}
	if lastKeyIdx > 0 {
		kept := g.buf[lastKeyIdx:]
		g.buf = append([]frame.MediaFrame(nil), kept...)
		g.bufBytes = 0
		for _, fr := range g.buf {
			g.bufBytes += fr.ApproxSize()
		}
		return
	}

	// A single over-long GOP: evict the oldest frames after the keyframe
	// at index 0, which itself stays.
	for len(g.buf) > 1 && (len(g.buf) > g.maxFrames || g.bufBytes > g.maxBytes) {
		g.bufBytes -= g.buf[1].ApproxSize()
		g.buf = append(g.buf[:1], g.buf[2:]...)
	}
}

// replay returns, in order, the frames a newly joined subscriber must
// receive before live tailing begins: configs first, then the buffered
// keyframe-forward run.
func (g *gopCache) replay() []frame.MediaFrame {
	var out []frame.MediaFrame
	if g.videoConfig != nil {
		out = append(out, *g.videoConfig)
	}
	if g.audioConfig != nil {
		out = append(out, *g.audioConfig)
	}
	if g.script != nil {
		out = append(out, *g.script)
	}
	out = append(out, g.buf...)
	return out
}
