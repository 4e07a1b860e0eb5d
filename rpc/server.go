package rpc

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/cors"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
	"golang.org/x/net/netutil"

	"github.com/rollkit/poe/config"
	"github.com/rollkit/poe/rpc/client"
	"github.com/rollkit/poe/rpc/json"
)

// Server handles HTTP, URI and WebSocket JSON-RPC requests.
type Server struct {
	*service.BaseService

	config config.RPCConfig
	client *client.Client

	server   http.Server
	listener net.Listener
}

// NewServer creates new instance of Server with given configuration.
func NewServer(c *client.Client, config config.RPCConfig, logger log.Logger) *Server {
	srv := &Server{
		config: config,
		client: c,
	}
	srv.BaseService = service.NewBaseService(logger, "RPC", srv)
	return srv
}

// Client returns the in-process client served by this Server.
func (s *Server) Client() *client.Client {
	return s.client
}

// Addr returns the address the server listens on, or nil if RPC is not exposed.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// OnStart is called when Server is started (see service.BaseService for details).
func (s *Server) OnStart() error {
	return s.startRPC()
}

// OnStop is called when Server is stopped (see service.BaseService for details).
func (s *Server) OnStop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.Logger.Error("error while shuting down RPC server", "error", err)
	}
}

func (s *Server) startRPC() error {
	if s.config.ListenAddress == "" {
		s.Logger.Info("Listen address not specified - RPC will not be exposed")
		return nil
	}
	parts := strings.SplitN(s.config.ListenAddress, "://", 2)
	if len(parts) != 2 {
		return errors.New("invalid RPC listen address: expecting tcp://host:port")
	}
	proto := parts[0]
	addr := parts[1]

	listener, err := net.Listen(proto, addr)
	if err != nil {
		return err
	}

	if s.config.MaxOpenConnections != 0 {
		s.Logger.Debug("limiting number of connections", "limit", s.config.MaxOpenConnections)
		listener = netutil.LimitListener(listener, s.config.MaxOpenConnections)
	}
	s.listener = listener

	handler, err := json.GetHTTPHandler(s.client, s.Logger)
	if err != nil {
		return err
	}

	if s.config.IsCorsEnabled() {
		s.Logger.Debug("CORS enabled",
			"origins", s.config.CORSAllowedOrigins,
			"methods", s.config.CORSAllowedMethods,
			"headers", s.config.CORSAllowedHeaders,
		)
		c := cors.New(cors.Options{
			AllowedOrigins: s.config.CORSAllowedOrigins,
			AllowedMethods: s.config.CORSAllowedMethods,
			AllowedHeaders: s.config.CORSAllowedHeaders,
		})
		handler = c.Handler(handler)
	}

	s.server = http.Server{
		Handler:           handler,
		ReadHeaderTimeout: time.Second * 2,
	}
	go func() {
		s.Logger.Info("serving HTTP", "listen address", listener.Addr())
		err := s.server.Serve(listener)
		if !errors.Is(err, http.ErrServerClosed) {
			s.Logger.Error("error while serving HTTP", "error", err)
		}
	}()

	return nil
}
