package network

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bluefox-project/bluefox/internal/config"
)

// PingMagicByte opens every latency probe. Clients measure RTT against
// the lobby before committing to a region; anything without the magic is
// ignored, the port sees plenty of internet noise.
const PingMagicByte = 0xCA

// UDPPingListener answers client latency probes on (tcp_port - 1). The
// response echoes the probe payload (client timestamp) followed by the
// server name and region so clients can label the measurement.
type UDPPingListener struct {
	cfg  *config.Config
	conn *net.UDPConn
}

// NewUDPPingListener creates a new UDP ping listener.
func NewUDPPingListener(cfg *config.Config) *UDPPingListener {
	return &UDPPingListener{
		cfg: cfg,
	}
}

// Start begins listening for latency probes. Blocks until ctx is done.
func (l *UDPPingListener) Start(ctx context.Context) error {
	port := l.calculatePort()
	addr := &net.UDPAddr{
		IP:   net.IPv4zero,
		Port: port,
	}

	// SO_REUSEADDR allows immediate rebinding after restart
	lc := ReuseAddrListenConfig()
	pc, err := lc.ListenPacket(ctx, "udp4", addr.String())
	if err != nil {
		return fmt.Errorf("failed to start UDP ping listener on port %d: %w", port, err)
	}
	l.conn = pc.(*net.UDPConn)

	log.Info().Int("port", port).Msg("UDP ping listener started")

	go func() {
		<-ctx.Done()
		l.conn.Close()
	}()

	buf := make([]byte, 1024)
	for {
		n, remoteAddr, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				log.Info().Msg("UDP ping listener stopping")
				return nil
			default:
				log.Error().Err(err).Msg("UDP read error")
				continue
			}
		}

		if n < 1 || buf[0] != PingMagicByte {
			continue
		}

		response := l.buildResponse(buf[1:n])
		if _, err := l.conn.WriteToUDP(response, remoteAddr); err != nil {
			log.Warn().
				Err(err).
				Str("remote", remoteAddr.String()).
				Msg("failed to send ping response")
		}

		log.Trace().
			Str("remote", remoteAddr.String()).
			Msg("responded to latency probe")
	}
}

// buildResponse is [magic][echo...][0x00][name][0x00][region].
func (l *UDPPingListener) buildResponse(echo []byte) []byte {
	srv := l.cfg.GetServerData()

	out := make([]byte, 0, 1+len(echo)+2+len(srv.Name)+len(srv.Region))
	out = append(out, PingMagicByte)
	out = append(out, echo...)
	out = append(out, 0x00)
	out = append(out, srv.Name...)
	out = append(out, 0x00)
	out = append(out, srv.Region...)
	return out
}

// calculatePort determines the probe port, kept adjacent to the binary
// protocol port so firewall rules cover both with one range.
func (l *UDPPingListener) calculatePort() int {
	return l.cfg.GetServerData().TCPPort - 1
}

// SelfTest sends a probe to verify the listener is reachable locally.
func (l *UDPPingListener) SelfTest() error {
	port := l.calculatePort()
	addr := &net.UDPAddr{
		IP:   net.IPv4(127, 0, 0, 1),
		Port: port,
	}

	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return fmt.Errorf("self-test dial failed: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte{PingMagicByte}); err != nil {
		return fmt.Errorf("self-test write failed: %w", err)
	}

	buf := make([]byte, 1024)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Read(buf); err != nil {
		return fmt.Errorf("self-test read failed: %w", err)
	}

	log.Debug().Int("port", port).Msg("ping listener self-test passed")
	return nil
}

// Stop closes the UDP listener.
func (l *UDPPingListener) Stop() error {
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}
