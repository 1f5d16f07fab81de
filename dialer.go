package tacplus

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"time"
)

// DuplexStream is the narrow interface the connection driver needs from an
// underlying transport: an ordered, reliable, full-duplex byte stream that
// can be closed to unblock a peer's in-flight read or write. *net.TCPConn
// and *tls.Conn both satisfy it; tests typically use one half of a
// net.Pipe.
type DuplexStream interface {
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)
	Close() error
}

// TLSDialConfig configures DialTLS. Only TLS 1.3 is offered: TACACS+'s own
// obfuscation is not a substitute for transport security, and there is no
// reason for a new deployment to negotiate anything weaker.
type TLSDialConfig struct {
	// ServerName is used for SNI and certificate verification. Required
	// unless InsecureSkipVerify is set.
	ServerName string

	// ClientCert, if set, is presented for mutual TLS.
	ClientCert *tls.Certificate

	// RootCAs overrides the system trust store when non-nil.
	RootCAs *x509.CertPool

	// InsecureSkipVerify disables certificate verification. Exists for
	// lab and test use; never set it against a production peer.
	InsecureSkipVerify bool

	// Timeout bounds the TCP connect and TLS handshake combined. Zero
	// means no timeout.
	Timeout time.Duration
}

// DialTLS opens a TLS 1.3 connection to addr and returns it as a
// DuplexStream. Session resumption is disabled so every connection
// performs a full handshake, matching the original transport's posture.
func DialTLS(ctx context.Context, addr string, cfg TLSDialConfig) (DuplexStream, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	tlsCfg := &tls.Config{
		ServerName:             cfg.ServerName,
		MinVersion:             tls.VersionTLS13,
		MaxVersion:             tls.VersionTLS13,
		SessionTicketsDisabled: true,
		InsecureSkipVerify:     cfg.InsecureSkipVerify,
	}
	if cfg.RootCAs != nil {
		tlsCfg.RootCAs = cfg.RootCAs
	}
	if cfg.ClientCert != nil {
		tlsCfg.Certificates = []tls.Certificate{*cfg.ClientCert}
	}
	if tlsCfg.ServerName == "" && !tlsCfg.InsecureSkipVerify {
		return nil, fmt.Errorf("tacplus: TLSDialConfig.ServerName is required unless InsecureSkipVerify is set")
	}

	d := tls.Dialer{Config: tlsCfg}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, newIOError(err)
	}
	return conn.(*tls.Conn), nil
}

// DialTCP opens a plain TCP connection to addr and returns it as a
// DuplexStream. Use this only when TLS is handled at a lower layer (an
// IPsec tunnel, a service mesh sidecar); TACACS+'s own body obfuscation is
// not an adequate substitute for transport security on an open network.
func DialTCP(ctx context.Context, addr string, timeout time.Duration) (DuplexStream, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, newIOError(err)
	}
	return conn.(*net.TCPConn), nil
}
