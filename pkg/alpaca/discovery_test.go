package alpaca

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/hashicorp/go-metrics"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateProbe(t *testing.T) {
	tests := []struct {
		name   string
		packet string
		reason string
		valid  bool
	}{
		{"exact magic", "alpacadiscovery1", "", true},
		{"magic with trailer", "alpacadiscovery1\x00extra", "", true},
		{"empty", "", "too_short", false},
		{"truncated magic", "alpacadiscovery", "too_short", false},
		{"other version", "alpacadiscovery2", "bad_magic", false},
		{"upper case", "ALPACADISCOVERY1", "bad_magic", false},
		{"magic not at start", "xalpacadiscovery1", "bad_magic", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reason, ok := validateProbe([]byte(tc.packet))
			assert.Equal(t, tc.valid, ok)
			assert.Equal(t, tc.reason, reason)
		})
	}
}

func startResponder(t *testing.T, alpacaPort int) (*net.UDPAddr, *metrics.InmemSink) {
	t.Helper()

	logger, _ := test.NewNullLogger()
	sink := metrics.NewInmemSink(time.Minute, time.Minute)
	dr := NewDiscoveryResponder("127.0.0.1", 0, alpacaPort, logger, sink)

	addr, err := dr.Listen()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- dr.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("discovery responder did not stop")
		}
	})

	return addr.(*net.UDPAddr), sink
}

func probe(t *testing.T, addr *net.UDPAddr, packet string, wait time.Duration) ([]string, error) {
	t.Helper()

	conn, err := net.DialUDP("udp", nil, addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(packet))
	require.NoError(t, err)

	var replies []string
	buf := make([]byte, 256)
	for {
		conn.SetReadDeadline(time.Now().Add(wait))
		n, err := conn.Read(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return replies, nil
			}
			return replies, err
		}
		replies = append(replies, string(buf[:n]))
	}
}

func TestDiscoveryResponder(t *testing.T) {
	addr, sink := startResponder(t, 11111)

	t.Run("valid probe gets one reply", func(t *testing.T) {
		replies, err := probe(t, addr, "alpacadiscovery1", time.Second)
		require.NoError(t, err)
		require.Len(t, replies, 1)
		assert.JSONEq(t, `{"AlpacaPort": 11111}`, replies[0])
		assert.Equal(t, `{"AlpacaPort": 11111}`, replies[0])
	})

	t.Run("short packet is ignored", func(t *testing.T) {
		replies, err := probe(t, addr, "alpaca", 300*time.Millisecond)
		require.NoError(t, err)
		assert.Empty(t, replies)
	})

	t.Run("wrong magic is ignored", func(t *testing.T) {
		replies, err := probe(t, addr, "alpacadiscovery2", 300*time.Millisecond)
		require.NoError(t, err)
		assert.Empty(t, replies)
	})

	t.Run("responder keeps serving after bad packets", func(t *testing.T) {
		replies, err := probe(t, addr, "alpacadiscovery1 and more", time.Second)
		require.NoError(t, err)
		assert.Len(t, replies, 1)
	})

	assert.Equal(t, 2, counterValue(sink, "alpaca.discovery.reply.count"))
	assert.Equal(t, 1, counterValue(sink, "alpaca.discovery.dropped.count;reason=too_short"))
	assert.Equal(t, 1, counterValue(sink, "alpaca.discovery.dropped.count;reason=bad_magic"))
}

func TestDiscoveryResponderStops(t *testing.T) {
	logger, _ := test.NewNullLogger()
	dr := NewDiscoveryResponder("127.0.0.1", 0, 11111, logger, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- dr.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("discovery responder did not stop")
	}
}
