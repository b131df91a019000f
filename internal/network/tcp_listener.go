package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bluefox-project/bluefox/internal/config"
	"github.com/bluefox-project/bluefox/internal/lobby"
	"github.com/bluefox-project/bluefox/internal/protocol"
)

// TCPListener accepts direct binary protocol connections. Each accepted
// connection gets its own session and its own goroutine running the
// framing loop; responses bypass the poll queue and go straight down the
// socket.
type TCPListener struct {
	cfg      *config.Config
	svc      *lobby.Service
	conns    *ConnectionRegistry
	listener net.Listener
}

// NewTCPListener creates a new TCP listener for the lobby service.
func NewTCPListener(cfg *config.Config, svc *lobby.Service, conns *ConnectionRegistry) *TCPListener {
	return &TCPListener{
		cfg:   cfg,
		svc:   svc,
		conns: conns,
	}
}

// Start begins accepting client connections. Blocks until ctx is done.
func (l *TCPListener) Start(ctx context.Context) error {
	srv := l.cfg.GetServerData()
	addr := fmt.Sprintf("%s:%d", srv.BindAddress, srv.TCPPort)

	// SO_REUSEADDR allows immediate rebinding after restart
	lc := ReuseAddrListenConfig()
	var err error
	l.listener, err = lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start TCP listener on %s: %w", addr, err)
	}

	log.Info().Str("addr", addr).Msg("TCP listener started")

	go func() {
		<-ctx.Done()
		l.listener.Close()
	}()

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				log.Info().Msg("TCP listener stopping")
				return nil
			default:
				log.Error().Err(err).Msg("failed to accept connection")
				continue
			}
		}

		log.Debug().
			Str("remote", conn.RemoteAddr().String()).
			Msg("new client connection")

		go l.handleConnection(ctx, conn)
	}
}

// handleConnection runs the framing loop for one client. The session is
// created on accept and bound as the connection's direct writer, so
// responses and room events skip the poll queue entirely.
func (l *TCPListener) handleConnection(ctx context.Context, rawConn net.Conn) {
	app := l.cfg.GetApplicationData()
	readTimeout := time.Duration(app.Timers.TCPReadTimeout) * time.Second
	writeTimeout := time.Duration(app.Timers.TCPWriteTimeout) * time.Second
	maxFrame := uint32(app.Protocol.MaxFrameSize)

	conn := NewConnection(rawConn, writeTimeout)
	defer conn.Close()

	clientIP, _, err := net.SplitHostPort(rawConn.RemoteAddr().String())
	if err != nil {
		clientIP = rawConn.RemoteAddr().String()
	}

	sess, err := l.svc.Sessions().CreateSession(clientIP)
	if err != nil {
		log.Error().Err(err).Msg("session allocation failed, dropping connection")
		return
	}
	sessionID := sess.ID()
	conn.BindSession(sessionID)

	logger := log.With().
		Str("component", "tcp_handler").
		Str("session", sessionID).
		Str("remote", rawConn.RemoteAddr().String()).
		Logger()

	l.svc.Sessions().BindWriter(sessionID, conn.WriteRaw)
	l.conns.Register(sessionID, conn)
	defer func() {
		l.conns.Unregister(sessionID)
		l.svc.DropSession(ctx, sessionID)
	}()

	logger.Info().Msg("client connected")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("context cancelled, closing connection")
			return
		default:
		}

		frame, err := conn.ReadFrame(readTimeout, maxFrame)
		if err != nil {
			if conn.IsClosed() {
				return
			}
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				logger.Warn().Msg("connection idle past read timeout, disconnecting")
				return
			}
			// A corrupt frame means stream integrity is gone; the
			// connection cannot be trusted past this point.
			if errors.Is(err, protocol.ErrMalformedWireData) ||
				errors.Is(err, protocol.ErrFrameTooLarge) ||
				errors.Is(err, protocol.ErrIncompleteFrame) {
				logger.Warn().Err(err).Msg("framing error, closing connection")
				return
			}
			logger.Debug().Err(err).Msg("read error, closing connection")
			return
		}

		if err := l.svc.Dispatch(ctx, sessionID, frame); err != nil {
			logger.Warn().Err(err).Msg("dispatch failed, closing connection")
			return
		}

		// An explicit disconnect frame removes the session; the loop has
		// nothing left to serve.
		if l.svc.Sessions().GetSession(sessionID) == nil {
			logger.Debug().Msg("session closed, ending frame loop")
			return
		}
	}
}

// Stop gracefully stops the TCP listener.
func (l *TCPListener) Stop() error {
	if l.listener != nil {
		return l.listener.Close()
	}
	return nil
}
