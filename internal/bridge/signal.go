package bridge

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Signal is an event exchanged with the native ad host.
type Signal string

const (
	// SignalShowAd is sent by the view to ask for ad playback.
	SignalShowAd        Signal = "show_rewarded_ad"
	SignalRewardGranted Signal = "reward_granted"
	SignalAdClosed      Signal = "ad_closed"
	SignalAdDismissed   Signal = "ad_dismissed"
	SignalAdNotReady    Signal = "ad_not_ready"
	SignalAdFailed      Signal = "ad_failed"
)

var ErrUnknownSignal = errors.New("unknown signal")

func (s Signal) known() bool {
	switch s {
	case SignalShowAd, SignalRewardGranted, SignalAdClosed, SignalAdDismissed, SignalAdNotReady, SignalAdFailed:
		return true
	}
	return false
}

// Frame is one inbound bridge message.
type Frame struct {
	Signal Signal
	// Session echoes the ad session the signal belongs to, when the host
	// sends one.
	Session string
}

// ParseFrame accepts the raw strings the ad host emits ("reward_granted")
// as well as JSON objects ({"event": "reward_granted", "session": "..."})
// and JSON strings.
func ParseFrame(data []byte) (Frame, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Frame{}, fmt.Errorf("%w: empty frame", ErrUnknownSignal)
	}

	var f Frame
	switch {
	case data[0] == '{':
		if !gjson.ValidBytes(data) {
			return Frame{}, fmt.Errorf("%w: malformed json", ErrUnknownSignal)
		}
		event := gjson.GetBytes(data, "event")
		if !event.Exists() {
			event = gjson.GetBytes(data, "type")
		}
		f.Signal = Signal(event.String())
		f.Session = gjson.GetBytes(data, "session").String()
	case data[0] == '"':
		if !gjson.ValidBytes(data) {
			return Frame{}, fmt.Errorf("%w: malformed json", ErrUnknownSignal)
		}
		f.Signal = Signal(gjson.ParseBytes(data).String())
	default:
		f.Signal = Signal(data)
	}

	f.Signal = Signal(strings.ToLower(strings.TrimSpace(string(f.Signal))))
	if !f.Signal.known() {
		return Frame{}, fmt.Errorf("%w: %q", ErrUnknownSignal, f.Signal)
	}
	return f, nil
}
