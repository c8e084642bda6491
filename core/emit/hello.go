package emit

import (
	"fmt"
	"strings"

	"github.com/gofeint/gofeint/core/fingerprint"

	utls "github.com/refraction-networking/utls"
)

// helloIDForAttributes maps a session's browser family to the matching uTLS
// ClientHello fingerprint, so the TLS layer agrees with the HTTP headers.
func helloIDForAttributes(attrs fingerprint.Attributes) utls.ClientHelloID {
	switch {
	case strings.Contains(attrs.UserAgent, "Firefox"):
		return utls.HelloFirefox_Auto
	case strings.Contains(attrs.UserAgent, "Version/"):
		return utls.HelloSafari_Auto
	default:
		return utls.HelloChrome_Auto
	}
}

// BuildClientHello marshals the ClientHello a real browser matching the
// session's fingerprint would send for sni. No network I/O happens; the
// bytes become a unit payload for a new simulated connection.
func BuildClientHello(attrs fingerprint.Attributes, sni string) ([]byte, error) {
	if sni == "" {
		return nil, fmt.Errorf("client hello requires a server name")
	}
	cfg := &utls.Config{
		ServerName:         sni,
		InsecureSkipVerify: true, // the hello is never used to complete a handshake
	}
	uconn := utls.UClient(nil, cfg, helloIDForAttributes(attrs))
	if err := uconn.BuildHandshakeState(); err != nil {
		return nil, fmt.Errorf("failed to build handshake state: %w", err)
	}
	raw := uconn.HandshakeState.Hello.Raw
	if len(raw) == 0 {
		return nil, fmt.Errorf("built an empty client hello")
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}
