package relay

import (
	"context"
	"errors"
	"sync"

	"github.com/bt-bridge/convai-relay/shared"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// leg is the transport surface a session needs from each WebSocket
// connection. *websocket.Conn satisfies it.
type leg interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

var _ leg = (*websocket.Conn)(nil)

// Session relays one phone call between a telephony leg and an upstream
// voice leg. The legs come up asynchronously: the telephony leg is attached
// at construction, the upstream leg later via AttachUpstream, and the stream
// token arrives whenever the provider sends its start frame. Agent audio
// produced before the token is known is held in a bounded pending buffer and
// drained in order once the start frame lands.
//
// All writes to the telephony leg happen under mu, which both satisfies the
// connection's single-writer requirement and guarantees nothing interleaves
// with the drain. Upstream writes are serialized separately under upMu so
// pong replies never wait on telephony I/O.
type Session struct {
	logger shared.LoggerAdapter

	mu         sync.Mutex
	telephony  leg
	upstream   leg
	streamSid  string
	tokenReady bool
	pending    *PendingBuffer
	closed     bool

	upMu sync.Mutex

	ctx    context.Context
	cancel context.CancelCauseFunc
}

func NewSession(ctx context.Context, logger shared.LoggerAdapter, telephony leg, maxPending int) (*Session, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if telephony == nil {
		return nil, errors.New("no telephony connection provided")
	}
	sessionCtx, cancel := context.WithCancelCause(ctx)
	return &Session{
		logger:    logger,
		telephony: telephony,
		pending:   NewPendingBuffer(maxPending),
		ctx:       sessionCtx,
		cancel:    cancel,
	}, nil
}

// Start begins consuming the telephony leg. Call it once.
func (s *Session) Start() {
	go s.readTelephony()
}

// AttachUpstream hands the upstream voice leg to the session and begins
// consuming it. If the session already closed, the connection is closed and
// ErrSessionClosed returned; the caller keeps no responsibility for it.
func (s *Session) AttachUpstream(conn leg) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return shared.ErrSessionClosed
	}
	s.upstream = conn
	s.mu.Unlock()

	go s.readUpstream(conn)
	return nil
}

// Done is closed when the session has fully torn down.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Err reports the teardown reason, nil while the session is still live.
func (s *Session) Err() error {
	return context.Cause(s.ctx)
}

// Close tears down both legs. It is idempotent and safe from any goroutine;
// only the first call's reason is recorded.
func (s *Session) Close(reason error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	telephony := s.telephony
	upstream := s.upstream
	s.mu.Unlock()

	if upstream != nil {
		upstream.Close()
	}
	telephony.Close()
	s.pending.Drain()
	s.cancel(reason)

	if reason != nil && !errors.Is(reason, shared.ErrSessionClosed) {
		s.logger.Info("session closed", zap.NamedError("reason", reason))
	} else {
		s.logger.Info("session closed")
	}
}

func (s *Session) readTelephony() {
	for {
		_, data, err := s.telephony.ReadMessage()
		if err != nil {
			s.Close(err)
			return
		}
		ev, err := ParseTelephonyEvent(data)
		if err != nil {
			s.logger.Warn("dropping telephony frame", zap.Error(err))
			continue
		}
		switch ev.Event {
		case TelephonyEventStart:
			s.handleStreamStart(ev.StreamSid)
		case TelephonyEventMedia:
			s.forwardCallerAudio(ev.Payload)
		case TelephonyEventStop:
			s.Close(nil)
			return
		default:
			s.logger.Debug("ignoring telephony event", zap.String("event", string(ev.Event)))
		}
	}
}

func (s *Session) readUpstream(conn leg) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.Close(err)
			return
		}
		ev, err := ParseUpstreamEvent(data)
		if err != nil {
			s.logger.Warn("dropping upstream frame", zap.Error(err))
			continue
		}
		switch ev.Type {
		case UpstreamEventAudio:
			s.relayAgentAudio(ev.Audio)
		case UpstreamEventPing:
			s.replyPong(conn, ev.PingID)
		case UpstreamEventInterruption:
			s.clearPlayback()
		case UpstreamEventMetadata:
			s.logger.Debug("conversation initiation acknowledged")
		default:
			s.logger.Debug("ignoring upstream event", zap.String("type", string(ev.Type)))
		}
	}
}

// handleStreamStart records the stream token and flushes the pending agent
// audio in arrival order. Holding mu across the drain writes keeps audio
// arriving concurrently from slotting in ahead of the buffered frames.
func (s *Session) handleStreamStart(streamSid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.tokenReady {
		return
	}
	s.streamSid = streamSid
	s.tokenReady = true

	frames := s.pending.Drain()
	s.logger.Info("stream started",
		zap.String("stream_sid", streamSid),
		zap.Int("buffered_frames", len(frames)),
	)
	for _, payload := range frames {
		if !s.writeTelephonyMediaLocked(payload) {
			return
		}
	}
}

func (s *Session) forwardCallerAudio(payload string) {
	s.mu.Lock()
	upstream := s.upstream
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	if upstream == nil {
		s.logger.Debug("dropping caller audio, upstream not attached")
		return
	}

	frame, err := EncodeUserAudio(payload)
	if err != nil {
		s.logger.Error("failed to encode caller audio", err)
		return
	}
	s.upMu.Lock()
	err = upstream.WriteMessage(websocket.TextMessage, frame)
	s.upMu.Unlock()
	if err != nil {
		s.Close(err)
	}
}

func (s *Session) relayAgentAudio(payload string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if !s.tokenReady {
		if err := s.pending.Append(payload); err != nil {
			if errors.Is(err, shared.ErrBufferOverflow) {
				s.logger.Error("pending buffer exhausted before stream start", err)
				go s.Close(err)
			}
			return
		}
		return
	}
	s.writeTelephonyMediaLocked(payload)
}

// writeTelephonyMediaLocked sends one media frame. Callers hold mu. A write
// failure tears the session down asynchronously since Close reacquires mu.
func (s *Session) writeTelephonyMediaLocked(payload string) bool {
	frame, err := EncodeTelephonyMedia(s.streamSid, payload)
	if err != nil {
		s.logger.Error("failed to encode agent audio", err)
		return true
	}
	if err := s.telephony.WriteMessage(websocket.TextMessage, frame); err != nil {
		go s.Close(err)
		return false
	}
	return true
}

// replyPong answers a keepalive on the leg it arrived on. It deliberately
// takes only upMu so a slow telephony write never delays the reply.
func (s *Session) replyPong(conn leg, eventID any) {
	frame, err := EncodePong(eventID)
	if err != nil {
		s.logger.Warn("failed to encode pong", zap.Error(err))
		return
	}
	s.upMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, frame)
	s.upMu.Unlock()
	if err != nil {
		s.Close(err)
	}
}

// clearPlayback propagates a barge-in by telling the telephony provider to
// flush queued agent audio. Before the stream token arrives there is nothing
// queued on the provider side, so the interruption is a no-op then.
func (s *Session) clearPlayback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.tokenReady {
		return
	}
	frame, err := EncodeTelephonyClear(s.streamSid)
	if err != nil {
		s.logger.Error("failed to encode clear frame", err)
		return
	}
	if err := s.telephony.WriteMessage(websocket.TextMessage, frame); err != nil {
		go s.Close(err)
	}
}
