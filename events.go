package relay

import (
	"errors"
	"fmt"

	"github.com/bt-bridge/convai-relay/shared"
	"github.com/bytedance/sonic"
)

type TelephonyEventType string

// Telephony leg event types. Start, media and stop arrive from the provider;
// media and clear are sent back to it.
const (
	TelephonyEventStart TelephonyEventType = "start"
	TelephonyEventMedia TelephonyEventType = "media"
	TelephonyEventStop  TelephonyEventType = "stop"
	TelephonyEventClear TelephonyEventType = "clear"
)

type UpstreamEventType string

// Upstream leg event types as received from the voice agent.
const (
	UpstreamEventAudio        UpstreamEventType = "audio"
	UpstreamEventPing         UpstreamEventType = "ping"
	UpstreamEventInterruption UpstreamEventType = "interruption"
	UpstreamEventMetadata     UpstreamEventType = "conversation_initiation_metadata_event"
)

// TelephonyEvent is a decoded frame from the telephony leg. StreamSid is set
// for start frames (and media frames that carry it); Payload is set for media
// frames only.
type TelephonyEvent struct {
	Event     TelephonyEventType
	StreamSid string
	Payload   string
}

func ParseTelephonyEvent(data []byte) (*TelephonyEvent, error) {
	var raw map[string]any
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrMalformedFrame, err)
	}
	ev := new(TelephonyEvent)
	if v, ok := raw["event"].(string); ok {
		ev.Event = TelephonyEventType(v)
	} else {
		return nil, fmt.Errorf("%w: missing event", shared.ErrMalformedFrame)
	}
	switch ev.Event {
	case TelephonyEventStart:
		if v, ok := raw["streamSid"].(string); ok && v != "" {
			ev.StreamSid = v
		} else {
			return nil, fmt.Errorf("%w: start without streamSid", shared.ErrMalformedFrame)
		}
	case TelephonyEventMedia:
		media, ok := raw["media"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: media without media object", shared.ErrMalformedFrame)
		}
		if v, ok := media["payload"].(string); ok {
			ev.Payload = v
		} else {
			return nil, fmt.Errorf("%w: media without payload", shared.ErrMalformedFrame)
		}
		if v, ok := raw["streamSid"].(string); ok {
			ev.StreamSid = v
		}
	case TelephonyEventStop:
		if v, ok := raw["streamSid"].(string); ok {
			ev.StreamSid = v
		}
	}
	return ev, nil
}

// EncodeTelephonyMedia wraps one base64 audio payload in a media frame
// addressed to the given stream token.
func EncodeTelephonyMedia(streamSid, payload string) ([]byte, error) {
	if streamSid == "" {
		return nil, errors.New("empty streamSid")
	}
	return sonic.Marshal(map[string]any{
		"event":     TelephonyEventMedia,
		"streamSid": streamSid,
		"media": map[string]any{
			"payload": payload,
		},
	})
}

// EncodeTelephonyClear builds the control frame telling the telephony
// provider to discard audio it has queued for playback.
func EncodeTelephonyClear(streamSid string) ([]byte, error) {
	if streamSid == "" {
		return nil, errors.New("empty streamSid")
	}
	return sonic.Marshal(map[string]any{
		"event":     TelephonyEventClear,
		"streamSid": streamSid,
	})
}

// UpstreamEvent is a decoded frame from the upstream voice leg. Audio is set
// for audio events; PingID carries the ping correlation identifier verbatim
// (the provider uses a numeric id, so its decoded JSON value is preserved).
type UpstreamEvent struct {
	Type   UpstreamEventType
	Audio  string
	PingID any
}

func ParseUpstreamEvent(data []byte) (*UpstreamEvent, error) {
	var raw map[string]any
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrMalformedFrame, err)
	}
	ev := new(UpstreamEvent)
	if v, ok := raw["type"].(string); ok {
		ev.Type = UpstreamEventType(v)
	} else {
		return nil, fmt.Errorf("%w: missing type", shared.ErrMalformedFrame)
	}
	switch ev.Type {
	case UpstreamEventAudio:
		audio, ok := raw["audio_event"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: audio without audio_event", shared.ErrMalformedFrame)
		}
		if v, ok := audio["audio_base_64"].(string); ok {
			ev.Audio = v
		} else {
			return nil, fmt.Errorf("%w: audio without audio_base_64", shared.ErrMalformedFrame)
		}
	case UpstreamEventPing:
		ping, ok := raw["ping_event"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: ping without ping_event", shared.ErrMalformedFrame)
		}
		v, ok := ping["event_id"]
		if !ok {
			return nil, fmt.Errorf("%w: ping without event_id", shared.ErrMalformedFrame)
		}
		ev.PingID = v
	}
	return ev, nil
}

// EncodeUserAudio wraps one base64 caller audio payload for the upstream leg.
func EncodeUserAudio(payload string) ([]byte, error) {
	return sonic.Marshal(map[string]any{
		"type":  "user_audio",
		"audio": payload,
	})
}

// EncodePong builds the keepalive reply carrying the ping's correlation
// identifier back to the upstream provider.
func EncodePong(eventID any) ([]byte, error) {
	if eventID == nil {
		return nil, errors.New("no ping event id")
	}
	return sonic.Marshal(map[string]any{
		"type":     "pong",
		"event_id": eventID,
	})
}

// EncodeInitiation builds the frame sent once after the upstream leg opens.
// The session id is an upstream-side correlation identifier only; it is never
// exposed to the telephony leg.
func EncodeInitiation(agentID string, enableTranscription bool, sessionID string) ([]byte, error) {
	if agentID == "" {
		return nil, shared.ErrNoAgentID
	}
	return sonic.Marshal(map[string]any{
		"agent_id":             agentID,
		"enable_transcription": enableTranscription,
		"session_id":           sessionID,
	})
}
