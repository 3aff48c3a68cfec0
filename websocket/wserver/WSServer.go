package wserver

import (
	"net"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"rtsdk/common/logger"
	"rtsdk/websocket/connection"
)

// WServer accepts websocket connections on a single path and feeds each connection's frames to
// its handler. It implements http.Handler so it can be mounted on any server.
type WServer struct {
	name     string
	config   WsServerConfig
	listener net.Listener
	server   *http.Server
	upgrader *websocket.Upgrader
	handler  IWsConnectionHandler
	logger   *logger.SimpleLogger
}

func NewWServer(config WsServerConfig) *WServer {
	wsServer := &WServer{
		name:    config.Name,
		config:  config,
		handler: config.WsConnectionHandler,
		logger:  logger.New(os.Stdout, "[wserver]", false),
	}
	wsServer.upgrader = &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 1024,
		CheckOrigin: func(req *http.Request) bool {
			return true
		},
	}
	return wsServer
}

func (ws *WServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != ws.config.UpgradeUrlPath || !websocket.IsWebSocketUpgrade(r) {
		ws.logger.Debugf("invalid request from %s(METHOD = %s URL = %s)", r.RemoteAddr, r.Method, r.URL)
		ws.handler.HandleNoUpgradableRequest(w, r)
		return
	}
	if err := ws.handler.CheckUpgradeRequest(r); err != nil {
		ws.logger.Printf("rejected upgrade from %s: %s", r.RemoteAddr, err.Error())
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Printf("err while upgrading HTTP request: %s", err.Error())
		return
	}
	ws.handleNewConnection(conn, r.Header)
}

// each HTTP request already runs on its own goroutine, so the read loop stays on it
func (ws *WServer) handleNewConnection(conn *websocket.Conn, header http.Header) {
	c := connection.NewWsConnection(uuid.NewString(), conn, ws.config.Connection, ws.logger)
	ws.logger.Debugf("new connection from %s detected", c.Address())
	ws.handler.HandleClientConnected(c, header)
	err := c.ReadLoop(func(msg []byte) {
		ws.handler.HandleMessage(c, msg)
	})
	ws.handler.HandleClientClosed(c, err)
}

// Start listens on the configured address and serves until Stop.
func (ws *WServer) Start() (err error) {
	ws.listener, err = net.Listen("tcp", ws.config.Address)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", ws.config.Address)
	}
	ws.server = &http.Server{Handler: ws}
	ws.logger.Printf("%s listening on %s%s", ws.name, ws.listener.Addr(), ws.config.UpgradeUrlPath)
	err = ws.server.Serve(ws.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (ws *WServer) Stop() error {
	if ws.server == nil {
		return nil
	}
	return ws.server.Close()
}

func (ws *WServer) SetLogger(logger *logger.SimpleLogger) {
	ws.logger = logger
}
