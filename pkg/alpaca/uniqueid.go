package alpaca

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
)

const base36Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// EncodeBase36 encodes n with digits 0-9 then A-Z, most significant digit
// first and without padding. Zero encodes to the empty string.
func EncodeBase36(n uint64) string {
	var buf [13]byte // 36^13 > 2^64
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = base36Alphabet[n%36]
		n /= 36
	}
	return string(buf[i:])
}

// ParseHardwareID parses a hexadecimal hardware address such as
// "AA:BB:CC:00:11:22" or "aabb-cc00-1122". Separators are ignored.
func ParseHardwareID(s string) (uint64, error) {
	hex := strings.Map(func(r rune) rune {
		switch r {
		case ':', '-', '.', ' ':
			return -1
		}
		return r
	}, s)
	if hex == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidHardwareID, s)
	}

	n, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidHardwareID, s, err)
	}
	return n, nil
}

// UniqueID derives the stable device id {deviceType}-{base36(hwID)}-{number}.
func UniqueID(deviceType string, number int, hwID uint64) (string, error) {
	if hwID == 0 {
		return "", ErrZeroHardwareID
	}
	return fmt.Sprintf("%s-%s-%d", deviceType, EncodeBase36(hwID), number), nil
}

// HostHardwareID returns the hardware address of the first non-loopback
// network interface, ordered by interface index.
func HostHardwareID() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("listing network interfaces: %w", err)
	}

	sort.Slice(ifaces, func(i, j int) bool { return ifaces[i].Index < ifaces[j].Index })
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) == 0 {
			continue
		}
		if hw, err := ParseHardwareID(iface.HardwareAddr.String()); err != nil || hw == 0 {
			continue
		}
		return iface.HardwareAddr.String(), nil
	}
	return "", fmt.Errorf("%w: no network interface with a hardware address", ErrInvalidHardwareID)
}
