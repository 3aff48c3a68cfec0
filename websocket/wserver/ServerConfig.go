package wserver

import (
	"net/http"

	"rtsdk/websocket/connection"
)

const DefaultUpgradePath = "/ws"

type IWsConnectionHandler interface {
	HandleClientConnected(*connection.WsConnection, http.Header)
	HandleMessage(*connection.WsConnection, []byte)
	HandleClientClosed(*connection.WsConnection, error)
	HandleNoUpgradableRequest(http.ResponseWriter, *http.Request)
	CheckUpgradeRequest(*http.Request) error
}

type WsConnectionHandler struct {
	onClientConnected     func(conn *connection.WsConnection, header http.Header)
	onMessage             func(conn *connection.WsConnection, msg []byte)
	onClientClosed        func(conn *connection.WsConnection, err error)
	onNoUpgradableRequest func(w http.ResponseWriter, r *http.Request)
	beforeUpgradeChecker  func(r *http.Request) error
}

func (h *WsConnectionHandler) HandleClientConnected(conn *connection.WsConnection, header http.Header) {
	if h.onClientConnected != nil {
		h.onClientConnected(conn, header)
	}
}

func (h *WsConnectionHandler) HandleMessage(conn *connection.WsConnection, msg []byte) {
	if h.onMessage != nil {
		h.onMessage(conn, msg)
	}
}

func (h *WsConnectionHandler) HandleClientClosed(conn *connection.WsConnection, err error) {
	if h.onClientClosed != nil {
		h.onClientClosed(conn, err)
	}
}

func (h *WsConnectionHandler) HandleNoUpgradableRequest(w http.ResponseWriter, r *http.Request) {
	if h.onNoUpgradableRequest != nil {
		h.onNoUpgradableRequest(w, r)
	} else {
		DefaultNoUpgradableHTTPRequestHandler(w, r)
	}
}

// CheckUpgradeRequest runs before the upgrade; a non-nil error rejects the handshake with 401.
func (h *WsConnectionHandler) CheckUpgradeRequest(r *http.Request) error {
	if h.beforeUpgradeChecker != nil {
		return h.beforeUpgradeChecker(r)
	}
	return nil
}

func NewWsConnHandler(
	onClientConnected func(conn *connection.WsConnection, header http.Header),
	onMessage func(conn *connection.WsConnection, msg []byte),
	onClientClosed func(conn *connection.WsConnection, err error),
	beforeUpgradeChecker func(r *http.Request) error,
) *WsConnectionHandler {
	return &WsConnectionHandler{
		onClientConnected:    onClientConnected,
		onMessage:            onMessage,
		onClientClosed:       onClientClosed,
		beforeUpgradeChecker: beforeUpgradeChecker,
	}
}

func DefaultWsConnHandler() *WsConnectionHandler {
	return NewWsConnHandler(nil, nil, nil, nil)
}

type WsServerConfig struct {
	Name           string
	Address        string
	UpgradeUrlPath string
	Connection     connection.Config
	*WsConnectionHandler
}

func NewServerConfig(name string, address string, upgradeUrlPath string, handler *WsConnectionHandler) WsServerConfig {
	if upgradeUrlPath == "" {
		upgradeUrlPath = DefaultUpgradePath
	}
	if handler == nil {
		handler = DefaultWsConnHandler()
	}
	return WsServerConfig{
		Name:                name,
		Address:             address,
		UpgradeUrlPath:      upgradeUrlPath,
		Connection:          connection.Config{WriteTimeout: connection.DefaultConfig().WriteTimeout},
		WsConnectionHandler: handler,
	}
}

func DefaultNoUpgradableHTTPRequestHandler(w http.ResponseWriter, r *http.Request) {
	code := http.StatusNotFound
	http.Error(w, http.StatusText(code), code)
}
