package ratelimit

import (
	"fmt"
	"net"
	"strings"

	"github.com/labstack/echo/v4"
)

// NewIPExtractor builds the echo IP extractor for a comma-separated list of
// trusted proxy addresses or CIDR ranges. With no trusted proxy the direct
// peer address is used and forwarding headers are ignored. Otherwise
// X-Forwarded-For is walked from the right and the first address outside the
// trusted ranges is the client.
func NewIPExtractor(trustedProxies string) (echo.IPExtractor, error) {
	options := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}

	trusted := 0
	for _, entry := range strings.Split(trustedProxies, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		ipNet, err := parseRange(entry)
		if err != nil {
			return nil, err
		}
		options = append(options, echo.TrustIPRange(ipNet))
		trusted++
	}

	if trusted == 0 {
		return echo.ExtractIPDirect(), nil
	}
	return echo.ExtractIPFromXFFHeader(options...), nil
}

func parseRange(entry string) (*net.IPNet, error) {
	if strings.Contains(entry, "/") {
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy range %q: %w", entry, err)
		}
		return ipNet, nil
	}

	ip := net.ParseIP(entry)
	if ip == nil {
		return nil, fmt.Errorf("invalid trusted proxy address %q", entry)
	}
	bits := 128
	if v4 := ip.To4(); v4 != nil {
		ip, bits = v4, 32
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}, nil
}

// ClientIP returns the client address of the request. It uses the server's
// IP extractor and, when none is set, the direct peer address. Forwarding
// headers are only honored through an extractor built by NewIPExtractor.
func ClientIP(c echo.Context) string {
	if c.Echo().IPExtractor == nil {
		return echo.ExtractIPDirect()(c.Request())
	}
	return c.RealIP()
}
