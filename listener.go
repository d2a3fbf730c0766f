package shadowswift

import (
	"net"

	"github.com/parall4x/ShadowSwift/metrics"
)

// Listener accepts raw TCP connections and wraps each one in the responder
// side of the handshake appropriate to cfg.Mode(), producing a ready-to-use
// Conn from Accept.
type Listener struct {
	raw      net.Listener
	cfg      *ShadowConfig
	recorder *metrics.Recorder
}

// Listen opens a TCP listener on address and binds cfg for accepted
// connections. For DarkStar modes cfg must carry the server's persistent
// private key (WithServerPersistentPrivateKey).
func Listen(network, address string, cfg *ShadowConfig, recorder *metrics.Recorder) (*Listener, error) {
	raw, err := net.Listen(network, address)
	if err != nil {
		return nil, newTransportError("listen", err)
	}
	return &Listener{raw: raw, cfg: cfg, recorder: recorder}, nil
}

// Accept blocks until a peer connects, runs the responder handshake, and
// returns the resulting Conn. A handshake failure closes the raw connection
// and returns an error rather than exposing a half-initialized Conn.
func (l *Listener) Accept() (*Conn, error) {
	raw, err := l.raw.Accept()
	if err != nil {
		return nil, newTransportError("accept", err)
	}

	c := &Conn{raw: raw, cfg: l.cfg, state: handshakeStart{}}
	if err := c.serverHandshake(l.recorder); err != nil {
		raw.Close()
		return nil, err
	}
	l.recorder.ConnOpened()
	return c, nil
}

// Close stops accepting new connections.
func (l *Listener) Close() error {
	return l.raw.Close()
}

// Addr reports the listener's bound address.
func (l *Listener) Addr() net.Addr { return l.raw.Addr() }

// serverHandshake dispatches to the classic salt exchange or the DarkStar
// responder flow depending on cfg.Mode().
func (c *Conn) serverHandshake(recorder *metrics.Recorder) error {
	switch {
	case c.cfg.mode.isDarkStar():
		sharedKey, err := runDarkStarServer(c.raw, c.cfg)
		if err != nil {
			recorder.HandshakeResult("server", false)
			return err
		}
		recorder.HandshakeResult("server", true)
		if err := c.installSharedKey(sharedKey, recorder); err != nil {
			return err
		}
	default:
		if err := c.installClassicKeys(recorder); err != nil {
			return err
		}
	}
	return nil
}
