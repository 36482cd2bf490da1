// # Telephony to Conversational-AI Voice Relay
//
// This repository provides a Go service that bridges a telephony media-stream WebSocket leg (Twilio-style media streams) with a conversational-AI voice WebSocket leg (ElevenLabs-style agents) for the duration of one phone call. Each accepted telephony connection gets its own call session that opens the upstream voice leg, translates frames in both directions, buffers agent audio until the telephony stream token arrives, answers keepalive pings, propagates barge-in interruptions, and tears both legs down together exactly once.
package relay
