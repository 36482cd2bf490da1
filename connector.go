package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/bt-bridge/convai-relay/shared"
	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/valyala/fasthttp"
)

const signedURLPath = "/v1/convai/conversation/get_signed_url"

// Connector opens authenticated upstream voice legs. It first exchanges the
// API key for a short-lived signed WebSocket URL, dials it, and sends the
// conversation initiation frame before handing the connection over. The API
// key itself never travels on the WebSocket.
type Connector struct {
	logger              shared.LoggerAdapter
	agentID             string
	apiKey              string
	baseURL             string
	enableTranscription bool
	dialer              *websocket.Dialer
}

func NewConnector(logger shared.LoggerAdapter, cfg *Config) (*Connector, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if cfg == nil {
		return nil, shared.ErrNoConfig
	}
	if cfg.Upstream.AgentID == "" {
		return nil, shared.ErrNoAgentID
	}
	if cfg.Upstream.APIKey == "" {
		return nil, shared.ErrNoAPIKey
	}
	baseURL := cfg.Upstream.BaseURL
	if baseURL == "" {
		baseURL = defaultUpstreamBaseURL
	}
	return &Connector{
		logger:              logger,
		agentID:             cfg.Upstream.AgentID,
		apiKey:              cfg.Upstream.APIKey,
		baseURL:             baseURL,
		enableTranscription: cfg.Upstream.EnableTranscription,
		dialer:              websocket.DefaultDialer,
	}, nil
}

// Connect performs the full upstream handshake and returns a connection that
// has already received the initiation frame.
func (c *Connector) Connect(ctx context.Context) (*websocket.Conn, error) {
	signedURL, err := c.signedURL(ctx)
	if err != nil {
		return nil, err
	}

	conn, _, err := c.dialer.DialContext(ctx, signedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial upstream: %w", err)
	}

	sessionID := fmt.Sprintf("twilio-%d", time.Now().UnixMilli())
	init, err := EncodeInitiation(c.agentID, c.enableTranscription, sessionID)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, init); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send initiation frame: %w", err)
	}

	c.logger.Debug("upstream leg opened")
	return conn, nil
}

func (c *Connector) signedURL(ctx context.Context) (string, error) {
	req := fasthttp.AcquireRequest()
	res := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(res)
	}()

	req.SetRequestURI(fmt.Sprintf("%s%s?agent_id=%s", c.baseURL, signedURLPath, c.agentID))
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("xi-api-key", c.apiKey)

	errC := make(chan error, 1)
	go func() {
		errC <- fasthttp.Do(req, res)
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case err := <-errC:
		if err != nil {
			return "", fmt.Errorf("failed to request signed url: %w", err)
		}
	}

	if res.StatusCode() != fasthttp.StatusOK {
		return "", fmt.Errorf("%w: status %d", shared.ErrAuthorization, res.StatusCode())
	}

	var body struct {
		SignedURL string `json:"signed_url"`
	}
	if err := sonic.Unmarshal(res.Body(), &body); err != nil {
		return "", fmt.Errorf("failed to decode signed url response: %w", err)
	}
	if body.SignedURL == "" {
		return "", shared.ErrNoSignedURL
	}
	return body.SignedURL, nil
}
