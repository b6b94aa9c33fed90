package observer

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNopDiscardsEverything(t *testing.T) {
	var o Nop
	assert.NotPanics(t, func() {
		o.ConnOpen("rtmp", "1.2.3.4:1935")
		o.ConnClose("rtmp", "1.2.3.4:1935", errors.New("boom"))
		o.SessionStateChange("rtsp", "sess-1", "Init", "Setup")
		o.StreamPublished("live", "cam1")
		o.StreamUnpublished("live", "cam1")
		o.StreamSubscribed("live", "cam1", "sub-1")
		o.StreamUnsubscribed("live", "cam1", "sub-1")
		o.FrameDropped("live", "cam1", "sub-1", "channel full")
		o.LostFragment("rtsp", "sess-1", "FU-A start preempted assembly")
		o.Error("rtmp", "handshake", errors.New("boom"))
	})
}

func TestNewLogrusDefaultsToStandardLogger(t *testing.T) {
	o := NewLogrus(nil)
	require.NotNil(t, o.Log)
	assert.Equal(t, logrus.StandardLogger(), o.Log)
}

func TestLogrusConnCloseLogsWarnOnError(t *testing.T) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	o := NewLogrus(log)

	o.ConnClose("rtsp", "10.0.0.1:554", errors.New("reset by peer"))

	require.Len(t, hook.Entries, 1)
	assert.Equal(t, logrus.WarnLevel, hook.Entries[0].Level)
	assert.Equal(t, "rtsp", hook.Entries[0].Data["proto"])
}

func TestLogrusConnCloseLogsInfoOnCleanClose(t *testing.T) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	o := NewLogrus(log)

	o.ConnClose("rtsp", "10.0.0.1:554", nil)

	require.Len(t, hook.Entries, 1)
	assert.Equal(t, logrus.InfoLevel, hook.Entries[0].Level)
}

func TestLogrusStreamLifecycleFields(t *testing.T) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	o := NewLogrus(log)

	o.StreamSubscribed("live", "cam1", "sub-42")

	require.Len(t, hook.Entries, 1)
	assert.Equal(t, "live", hook.Entries[0].Data["app"])
	assert.Equal(t, "cam1", hook.Entries[0].Data["stream"])
	assert.Equal(t, "sub-42", hook.Entries[0].Data["subscriber"])
}

func TestLogrusLostFragmentLogsWarn(t *testing.T) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	o := NewLogrus(log)

	o.LostFragment("rtsp", "sess-1", "FU-A start preempted assembly")

	require.Len(t, hook.Entries, 1)
	assert.Equal(t, logrus.WarnLevel, hook.Entries[0].Level)
	assert.Equal(t, "sess-1", hook.Entries[0].Data["session"])
}

func TestLogrusErrorAttachesErrorField(t *testing.T) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	o := NewLogrus(log)

	o.Error("rtmp", "chunk-decode", errors.New("bad basic header"))

	require.Len(t, hook.Entries, 1)
	assert.Equal(t, logrus.ErrorLevel, hook.Entries[0].Level)
	assert.EqualError(t, hook.Entries[0].Data["error"].(error), "bad basic header")
}
