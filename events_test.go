package relay

import (
	"encoding/json"
	"testing"

	"github.com/bt-bridge/convai-relay/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTelephonyEvent(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    *TelephonyEvent
		wantErr bool
	}{
		{
			name: "start",
			data: `{"event":"start","streamSid":"MZ123","start":{"accountSid":"AC1"}}`,
			want: &TelephonyEvent{Event: TelephonyEventStart, StreamSid: "MZ123"},
		},
		{
			name: "media",
			data: `{"event":"media","streamSid":"MZ123","media":{"payload":"QUJD"}}`,
			want: &TelephonyEvent{Event: TelephonyEventMedia, StreamSid: "MZ123", Payload: "QUJD"},
		},
		{
			name: "media without streamSid",
			data: `{"event":"media","media":{"payload":"QUJD"}}`,
			want: &TelephonyEvent{Event: TelephonyEventMedia, Payload: "QUJD"},
		},
		{
			name: "stop",
			data: `{"event":"stop","streamSid":"MZ123"}`,
			want: &TelephonyEvent{Event: TelephonyEventStop, StreamSid: "MZ123"},
		},
		{
			name: "unknown event passes through",
			data: `{"event":"mark"}`,
			want: &TelephonyEvent{Event: "mark"},
		},
		{
			name:    "missing event",
			data:    `{"streamSid":"MZ123"}`,
			wantErr: true,
		},
		{
			name:    "start without streamSid",
			data:    `{"event":"start"}`,
			wantErr: true,
		},
		{
			name:    "start with empty streamSid",
			data:    `{"event":"start","streamSid":""}`,
			wantErr: true,
		},
		{
			name:    "media without payload",
			data:    `{"event":"media","media":{}}`,
			wantErr: true,
		},
		{
			name:    "media without media object",
			data:    `{"event":"media"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			data:    `hello`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTelephonyEvent([]byte(tt.data))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, shared.ErrMalformedFrame)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseUpstreamEvent(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    *UpstreamEvent
		wantErr bool
	}{
		{
			name: "audio",
			data: `{"type":"audio","audio_event":{"audio_base_64":"QUJD","event_id":7}}`,
			want: &UpstreamEvent{Type: UpstreamEventAudio, Audio: "QUJD"},
		},
		{
			name: "ping with numeric id",
			data: `{"type":"ping","ping_event":{"event_id":42}}`,
			want: &UpstreamEvent{Type: UpstreamEventPing, PingID: float64(42)},
		},
		{
			name: "ping with string id",
			data: `{"type":"ping","ping_event":{"event_id":"ev-1"}}`,
			want: &UpstreamEvent{Type: UpstreamEventPing, PingID: "ev-1"},
		},
		{
			name: "interruption",
			data: `{"type":"interruption"}`,
			want: &UpstreamEvent{Type: UpstreamEventInterruption},
		},
		{
			name: "initiation metadata",
			data: `{"type":"conversation_initiation_metadata_event","conversation_initiation_metadata_event":{}}`,
			want: &UpstreamEvent{Type: UpstreamEventMetadata},
		},
		{
			name: "unknown type passes through",
			data: `{"type":"agent_response"}`,
			want: &UpstreamEvent{Type: "agent_response"},
		},
		{
			name:    "missing type",
			data:    `{"audio_event":{}}`,
			wantErr: true,
		},
		{
			name:    "audio without audio_event",
			data:    `{"type":"audio"}`,
			wantErr: true,
		},
		{
			name:    "audio without payload",
			data:    `{"type":"audio","audio_event":{}}`,
			wantErr: true,
		},
		{
			name:    "ping without event_id",
			data:    `{"type":"ping","ping_event":{}}`,
			wantErr: true,
		},
		{
			name:    "not json",
			data:    `[1,2`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUpstreamEvent([]byte(tt.data))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, shared.ErrMalformedFrame)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func decodeJSON(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestEncodeTelephonyMedia(t *testing.T) {
	data, err := EncodeTelephonyMedia("MZ123", "QUJD")
	require.NoError(t, err)
	got := decodeJSON(t, data)
	assert.Equal(t, "media", got["event"])
	assert.Equal(t, "MZ123", got["streamSid"])
	assert.Equal(t, map[string]any{"payload": "QUJD"}, got["media"])

	_, err = EncodeTelephonyMedia("", "QUJD")
	assert.Error(t, err)
}

func TestEncodeTelephonyClear(t *testing.T) {
	data, err := EncodeTelephonyClear("MZ123")
	require.NoError(t, err)
	got := decodeJSON(t, data)
	assert.Equal(t, "clear", got["event"])
	assert.Equal(t, "MZ123", got["streamSid"])

	_, err = EncodeTelephonyClear("")
	assert.Error(t, err)
}

func TestEncodeUserAudio(t *testing.T) {
	data, err := EncodeUserAudio("QUJD")
	require.NoError(t, err)
	got := decodeJSON(t, data)
	assert.Equal(t, "user_audio", got["type"])
	assert.Equal(t, "QUJD", got["audio"])
}

func TestEncodePong(t *testing.T) {
	data, err := EncodePong(float64(42))
	require.NoError(t, err)
	got := decodeJSON(t, data)
	assert.Equal(t, "pong", got["type"])
	assert.Equal(t, float64(42), got["event_id"])

	_, err = EncodePong(nil)
	assert.Error(t, err)
}

func TestEncodeInitiation(t *testing.T) {
	data, err := EncodeInitiation("agent-1", true, "twilio-1700000000000")
	require.NoError(t, err)
	got := decodeJSON(t, data)
	assert.Equal(t, "agent-1", got["agent_id"])
	assert.Equal(t, true, got["enable_transcription"])
	assert.Equal(t, "twilio-1700000000000", got["session_id"])

	_, err = EncodeInitiation("", false, "s")
	assert.ErrorIs(t, err, shared.ErrNoAgentID)
}
