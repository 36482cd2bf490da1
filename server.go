package relay

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bt-bridge/convai-relay/shared"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const twimlTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<Response>
	<Start>
		<Stream url="%s" />
	</Start>
	<Pause length="10"/>
</Response>`

// Server exposes the HTTP surface of the relay: the telephony webhook that
// answers with stream instructions, the conversation initiation webhook, and
// the media-stream WebSocket endpoint that hosts call sessions.
type Server struct {
	logger    shared.LoggerAdapter
	cfg       *Config
	connector *Connector
	engine    *gin.Engine
	upgrader  websocket.Upgrader
	srv       *http.Server
}

func NewServer(logger shared.LoggerAdapter, cfg *Config) (*Server, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if cfg == nil {
		return nil, shared.ErrNoConfig
	}
	connector, err := NewConnector(logger, cfg)
	if err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		logger:    logger,
		cfg:       cfg,
		connector: connector,
		engine:    engine,
		upgrader: websocket.Upgrader{
			// The telephony provider connects server to server.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	engine.GET("/", s.handleHealth)
	engine.POST("/twilio", s.handleInbound)
	engine.POST("/init", s.handleInitiation)
	engine.GET("/ws", s.handleStream)
	return s, nil
}

// Handler exposes the routing tree, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("listening", zap.String("addr", addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "convai relay is running")
}

// handleInbound answers the telephony provider's inbound-call webhook with
// instructions to open a media stream back to this service.
func (s *Server) handleInbound(c *gin.Context) {
	c.Header("Content-Type", "text/xml")
	c.String(http.StatusOK, fmt.Sprintf(twimlTemplate, s.wsURL()))
}

func (s *Server) wsURL() string {
	base := s.cfg.Server.PublicURL
	if base == "" {
		base = fmt.Sprintf("http://%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	}
	base = strings.Replace(base, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	return strings.TrimSuffix(base, "/") + "/ws"
}

// handleInitiation serves the conversation initiation webhook the upstream
// provider calls at call setup, returning the configured agent overrides.
func (s *Server) handleInitiation(c *gin.Context) {
	var body struct {
		CallerID string `json:"caller_id"`
	}
	if err := c.ShouldBindJSON(&body); err == nil && body.CallerID != "" {
		s.logger.Info("initiation webhook", zap.String("caller_id", body.CallerID))
	}

	overrides := gin.H{
		"agent": gin.H{
			"prompt": gin.H{
				"prompt": s.cfg.Call.Prompt,
			},
			"first_message": s.cfg.Call.FirstMessage,
			"language":      s.cfg.Call.Language,
		},
		"tts": gin.H{
			"voice_id": s.cfg.Call.VoiceID,
		},
	}
	c.JSON(http.StatusOK, gin.H{
		"type":                         "conversation_initiation_client_data",
		"conversation_config_override": overrides,
		"dynamic_variables":            s.cfg.Call.DynamicVariables,
	})
}

// handleStream upgrades the telephony connection and hosts the call session
// until either leg ends it. Each call gets its own logger with a generated
// call id so both legs' events correlate in the logs.
func (s *Server) handleStream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("failed to upgrade telephony connection", err)
		return
	}

	callID := uuid.New().String()
	logger := s.logger.With(zap.String("call_id", callID))
	logger.Info("telephony leg connected")

	sess, err := NewSession(context.Background(), logger, conn, s.cfg.Relay.MaxPendingFrames)
	if err != nil {
		logger.Error("failed to create session", err)
		conn.Close()
		return
	}
	sess.Start()

	upstream, err := s.connector.Connect(c.Request.Context())
	if err != nil {
		logger.Error("failed to open upstream leg", err)
		sess.Close(err)
		return
	}
	if err := sess.AttachUpstream(upstream); err != nil {
		logger.Debug("session ended before upstream attach")
		return
	}

	<-sess.Done()
}
