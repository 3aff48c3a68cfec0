package client

import (
	"github.com/pkg/errors"

	"rtsdk/credential"
	"rtsdk/websocket/wclient"
)

var (
	// ErrCredentialUnavailable is reported when the provider has no token; no dial is attempted.
	ErrCredentialUnavailable = credential.ErrUnavailable
	// ErrReconnectExhausted is reported once the reconnect budget is spent.
	ErrReconnectExhausted    = wclient.ErrReconnectExhausted
	ErrDisconnected          = errors.New("disconnected")
	ErrNotActive             = errors.New("client is not active")
	ErrInvalidPresenceStatus = errors.New("invalid presence status")
)
