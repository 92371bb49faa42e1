package alpaca

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-metrics"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultDiscoveryPort is the UDP port Alpaca clients broadcast to.
	DefaultDiscoveryPort = 32227

	discoveryMagic = "alpacadiscovery1"
	pollInterval   = 250 * time.Millisecond
)

// DiscoveryResponder answers Alpaca discovery probes with the HTTP port.
type DiscoveryResponder struct {
	addr           string
	port           int
	alpacaResponse []byte
	logger         log.FieldLogger
	msink          metrics.MetricSink

	mu   sync.Mutex
	conn *net.UDPConn
}

// NewDiscoveryResponder creates a responder listening on addr:port that
// advertises alpacaPort.
func NewDiscoveryResponder(addr string, port, alpacaPort int, logger log.FieldLogger, sink metrics.MetricSink) *DiscoveryResponder {
	if sink == nil {
		sink = metrics.Default()
	}
	return &DiscoveryResponder{
		addr:           addr,
		port:           port,
		alpacaResponse: []byte(fmt.Sprintf(`{"AlpacaPort": %d}`, alpacaPort)),
		logger:         logger,
		msink:          sink,
	}
}

// Listen binds the UDP socket and returns its local address. Run calls it
// when needed.
func (d *DiscoveryResponder) Listen() (net.Addr, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn != nil {
		return d.conn.LocalAddr(), nil
	}

	laddr, err := net.ResolveUDPAddr("udp", joinHostPort(d.addr, d.port))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve discovery address: %w", err)
	}

	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("cannot bind discovery socket: %w", err)
	}
	d.conn = conn
	return conn.LocalAddr(), nil
}

// Run answers probes until ctx is done.
func (d *DiscoveryResponder) Run(ctx context.Context) error {
	if _, err := d.Listen(); err != nil {
		return err
	}

	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		conn.Close()
		d.conn = nil
		d.mu.Unlock()
	}()

	buf := make([]byte, 1024)

	d.logger.Debugf("Discovery responder started on %s", conn.LocalAddr())
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		// Short deadlines keep the loop responsive to cancellation.
		conn.SetReadDeadline(time.Now().Add(pollInterval))

		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			d.logger.Debugf("Error reading from socket: %v", err)
			continue
		}

		d.handlePacket(conn, buf[:n], addr)
	}
}

func (d *DiscoveryResponder) handlePacket(conn *net.UDPConn, packet []byte, addr *net.UDPAddr) {
	d.logger.Debugf("Received packet of size %d from %s: %q", len(packet), addr, packet)

	if reason, ok := validateProbe(packet); !ok {
		d.msink.IncrCounterWithLabels(MetricDiscoveryDroppedCount, 1, []metrics.Label{LabelReason.M(reason)})
		return
	}

	if _, err := conn.WriteToUDP(d.alpacaResponse, addr); err != nil {
		d.logger.Errorf("Error writing to socket: %v", err)
		return
	}
	d.msink.IncrCounter(MetricDiscoveryReplyCount, 1)
	d.logger.Debugf("Response: %s", d.alpacaResponse)
}

// validateProbe reports whether packet is a discovery probe, and if not, why.
func validateProbe(packet []byte) (string, bool) {
	if len(packet) < len(discoveryMagic) {
		return "too_short", false
	}
	if !bytes.Equal(packet[:len(discoveryMagic)], []byte(discoveryMagic)) {
		return "bad_magic", false
	}
	return "", true
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
