package rpc

import (
	"errors"
	"net"

	"github.com/cuemby/blockd/pkg/log"
	"github.com/cuemby/blockd/pkg/metrics"
	"github.com/rs/zerolog"
)

// Server listens for peer connections and dispatches each request
// envelope to a Handler, replying with the handler's response or BadRpc
// on a dispatch error.
type Server struct {
	ln      net.Listener
	handler Handler
	logger  zerolog.Logger
}

// NewServer binds addr and returns a Server ready to Serve.
func NewServer(addr string, handler Handler) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		ln:      ln,
		handler: handler,
		logger:  log.WithComponent("rpc"),
	}, nil
}

// Addr returns the server's bound address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve accepts connections until the listener is closed. Each
// connection handles exactly one request/response frame before closing,
// matching the request/response shape of the four-message protocol.
func (s *Server) Serve() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.ln.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	req, err := ReadEnvelope(conn)
	if err != nil {
		s.logger.Debug().Err(err).Msg("failed to read request envelope")
		return
	}

	timer := metrics.NewTimer()
	resp, err := s.handler.Handle(req)
	if err != nil {
		s.logger.Warn().Err(err).Str("kind", req.Kind.String()).Msg("rpc handler error")
		resp = BadRpc()
	}

	metrics.RPCRequestsTotal.WithLabelValues(req.Kind.String(), statusLabel(err)).Inc()
	timer.ObserveDurationVec(metrics.RPCRequestDuration, req.Kind.String())

	if err := WriteEnvelope(conn, resp); err != nil {
		s.logger.Debug().Err(err).Msg("failed to write response envelope")
	}
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
