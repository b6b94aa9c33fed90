// Package observer is the out-of-band event interface sessions and the
// broker emit structured events through, keeping observability separate
// from protocol logic.
package observer

import "github.com/sirupsen/logrus"

// Observer receives structured lifecycle events from protocol sessions and
// the broker. Implementations must not block: callers invoke these methods
// inline on hot paths (frame fan-out, chunk assembly).
type Observer interface {
	ConnOpen(proto, remoteAddr string)
	ConnClose(proto, remoteAddr string, err error)
	SessionStateChange(proto, sessionID, from, to string)
	StreamPublished(app, name string)
	StreamUnpublished(app, name string)
	StreamSubscribed(app, name, subscriberID string)
	StreamUnsubscribed(app, name, subscriberID string)
	FrameDropped(app, name, subscriberID, reason string)
	LostFragment(proto, sessionID, reason string)
	Error(proto, context string, err error)
}

// Nop discards every event. Useful as a default and in tests that don't
// care about observability.
type Nop struct{}

func (Nop) ConnOpen(string, string) {}
func (Nop) ConnClose(string, string, error) {}
func (Nop) SessionStateChange(string, string, string, string) {}
func (Nop) StreamPublished(string, string) {}
func (Nop) StreamUnpublished(string, string) {}
func (Nop) StreamSubscribed(string, string, string) {}
func (Nop) StreamUnsubscribed(string, string, string) {}
func (Nop) FrameDropped(string, string, string, string) {}
func (Nop) LostFragment(string, string, string) {}
func (Nop) Error(string, string, error) {}

// Logrus backs Observer with structured, leveled logging.
type Logrus struct {
	Log *logrus.Logger
}

// NewLogrus builds a Logrus observer. If log is nil, logrus.StandardLogger
// is used.
func NewLogrus(log *logrus.Logger) *Logrus {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Logrus{Log: log}
}

func (o *Logrus) ConnOpen(proto, remoteAddr string) {
	o.Log.WithFields(logrus.Fields{"proto": proto, "remote": remoteAddr}).Info("connection opened")
}

func (o *Logrus) ConnClose(proto, remoteAddr string, err error) {
	fields := logrus.Fields{"proto": proto, "remote": remoteAddr}
	if err != nil {
		o.Log.WithFields(fields).WithError(err).Warn("connection closed")
		return
	}
	o.Log.WithFields(fields).Info("connection closed")
}

func (o *Logrus) SessionStateChange(proto, sessionID, from, to string) {
	o.Log.WithFields(logrus.Fields{
		"proto": proto, "session": sessionID, "from": from, "to": to,
	}).Debug("session state change")
}

func (o *Logrus) StreamPublished(app, name string) {
	o.Log.WithFields(logrus.Fields{"app": app, "stream": name}).Info("stream published")
}

func (o *Logrus) StreamUnpublished(app, name string) {
	o.Log.WithFields(logrus.Fields{"app": app, "stream": name}).Info("stream unpublished")
}

func (o *Logrus) StreamSubscribed(app, name, subscriberID string) {
	o.Log.WithFields(logrus.Fields{
		"app": app, "stream": name, "subscriber": subscriberID,
	}).Info("subscriber joined")
}

func (o *Logrus) StreamUnsubscribed(app, name, subscriberID string) {
	o.Log.WithFields(logrus.Fields{
		"app": app, "stream": name, "subscriber": subscriberID,
	}).Info("subscriber left")
}

func (o *Logrus) FrameDropped(app, name, subscriberID, reason string) {
	o.Log.WithFields(logrus.Fields{
		"app": app, "stream": name, "subscriber": subscriberID, "reason": reason,
	}).Debug("frame dropped for slow subscriber")
}

func (o *Logrus) LostFragment(proto, sessionID, reason string) {
	o.Log.WithFields(logrus.Fields{
		"proto": proto, "session": sessionID, "reason": reason,
	}).Warn("RTP fragment assembly lost")
}

func (o *Logrus) Error(proto, context string, err error) {
	o.Log.WithFields(logrus.Fields{"proto": proto, "context": context}).WithError(err).Error("error")
}
