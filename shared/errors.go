package shared

import "errors"

var (
	ErrNoLogger       = errors.New("no logger provided")
	ErrNoConfig       = errors.New("no config provided")
	ErrNoAgentID      = errors.New("no agent id provided")
	ErrNoAPIKey       = errors.New("no API key provided")
	ErrAuthorization  = errors.New("upstream authorization failed")
	ErrNoSignedURL    = errors.New("no signed url in authorization response")
	ErrMalformedFrame = errors.New("malformed frame")
	ErrBufferOverflow = errors.New("pending audio buffer overflow")
	ErrSessionClosed  = errors.New("session closed")
)
