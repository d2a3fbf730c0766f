// Package shadowswift implements the cryptographic transport core of a
// Shadowsocks-compatible obfuscating proxy client: stream AEAD framing over
// a raw TCP connection, legacy and HKDF key derivation, and the experimental
// DarkStar ECDH handshake.
package shadowswift

import (
	"fmt"
	"net"
	"strconv"
)

// CipherMode selects the AEAD algorithm and, for the DarkStar modes, the
// handshake strategy used to establish the session key.
type CipherMode int32

const (
	// AES128GCM derives a 16-byte key via EVP_BytesToKey + HKDF-SHA1 and a
	// 16-byte per-connection salt.
	AES128GCM CipherMode = iota
	// AES256GCM derives a 32-byte key and a 32-byte per-connection salt.
	AES256GCM
	// ChaCha20IETFPoly1305 derives a 32-byte key and a 32-byte per-connection
	// salt.
	ChaCha20IETFPoly1305
	// DarkStarClient runs the DarkStar handshake as the initiator. The
	// session key is produced by the handshake itself; no salt is sent.
	DarkStarClient
	// DarkStarServer runs the DarkStar handshake as the responder.
	DarkStarServer
)

func (m CipherMode) String() string {
	switch m {
	case AES128GCM:
		return "AES-128-GCM"
	case AES256GCM:
		return "AES-256-GCM"
	case ChaCha20IETFPoly1305:
		return "CHACHA20-IETF-POLY1305"
	case DarkStarClient:
		return "DarkStarClient"
	case DarkStarServer:
		return "DarkStarServer"
	default:
		return fmt.Sprintf("CipherMode(%d)", int32(m))
	}
}

func (m CipherMode) isDarkStar() bool {
	return m == DarkStarClient || m == DarkStarServer
}

// ShadowConfig carries everything a Conn needs to dial or accept a session.
// It is immutable after construction by NewConfig; callers that need a
// different configuration build a new one.
type ShadowConfig struct {
	mode CipherMode

	// password is the classic-mode pre-shared secret. Ignored for DarkStar
	// modes.
	password string

	// serverPersistentPublicKey is the server's long-term P-256 public key
	// in compact (x-only) encoding. Required for DarkStarClient.
	serverPersistentPublicKey [32]byte
	hasServerPersistentKey    bool

	// serverPersistentPrivateKey is the server's long-term P-256 private
	// key. Required for DarkStarServer.
	serverPersistentPrivateKey []byte
	hasServerPersistentPriv    bool

	serverHost string
	serverPort uint16
}

// Option configures a ShadowConfig under construction.
type Option func(*ShadowConfig)

// WithPassword sets the classic-mode pre-shared password.
func WithPassword(password string) Option {
	return func(c *ShadowConfig) { c.password = password }
}

// WithServerPersistentPublicKey sets the DarkStar server's long-term public
// key, in compact (32-byte, x-only) encoding.
func WithServerPersistentPublicKey(pub [32]byte) Option {
	return func(c *ShadowConfig) {
		c.serverPersistentPublicKey = pub
		c.hasServerPersistentKey = true
	}
}

// WithServerPersistentPrivateKey sets the DarkStar server's long-term
// private key (server role only).
func WithServerPersistentPrivateKey(priv []byte) Option {
	return func(c *ShadowConfig) {
		c.serverPersistentPrivateKey = append([]byte(nil), priv...)
		c.hasServerPersistentPriv = true
	}
}

// WithServerEndpoint sets the target host/port the handshake binds to. For
// DarkStar modes host must resolve to a literal IPv4 or IPv6 address; the
// handshake is undefined for hostnames (spec.md §4.4).
func WithServerEndpoint(host string, port uint16) Option {
	return func(c *ShadowConfig) {
		c.serverHost = host
		c.serverPort = port
	}
}

// NewConfig builds an immutable ShadowConfig for the given mode, validating
// the combination of options the mode requires.
func NewConfig(mode CipherMode, opts ...Option) (*ShadowConfig, error) {
	cfg := &ShadowConfig{mode: mode}
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ShadowConfig) validate() error {
	switch c.mode {
	case AES128GCM, AES256GCM, ChaCha20IETFPoly1305:
		if c.password == "" {
			return newConfigError("validate", fmt.Errorf("mode %s requires a password", c.mode))
		}
	case DarkStarClient:
		if !c.hasServerPersistentKey {
			return newConfigError("validate", fmt.Errorf("DarkStarClient requires a server persistent public key"))
		}
		if err := c.validateIPEndpoint(); err != nil {
			return err
		}
	case DarkStarServer:
		if !c.hasServerPersistentPriv {
			return newConfigError("validate", fmt.Errorf("DarkStarServer requires a server persistent private key"))
		}
		if err := c.validateIPEndpoint(); err != nil {
			return err
		}
	default:
		return newConfigError("validate", fmt.Errorf("unsupported cipher mode %s", c.mode))
	}
	return nil
}

// validateIPEndpoint rejects hostnames for DarkStar modes: the handshake's
// server identifier is defined only over literal IP endpoints (spec.md
// §4.4).
func (c *ShadowConfig) validateIPEndpoint() error {
	if c.serverHost == "" {
		return newConfigError("validate", fmt.Errorf("DarkStar requires a server endpoint"))
	}
	if net.ParseIP(c.serverHost) == nil {
		return newConfigError("validate", fmt.Errorf("DarkStar requires a literal IP endpoint, got %q", c.serverHost))
	}
	return nil
}

// Mode reports the configured cipher mode.
func (c *ShadowConfig) Mode() CipherMode { return c.mode }

// Endpoint reports the configured server endpoint as "host:port".
func (c *ShadowConfig) Endpoint() string {
	return net.JoinHostPort(c.serverHost, strconv.Itoa(int(c.serverPort)))
}

// keySize returns the symmetric key length in bytes for the configured
// mode (spec.md §3 CipherMode).
func (m CipherMode) keySize() int {
	switch m {
	case AES128GCM:
		return 16
	case AES256GCM, ChaCha20IETFPoly1305, DarkStarClient, DarkStarServer:
		return 32
	default:
		return 0
	}
}

// saltSize returns the cleartext salt length for classic AEAD modes; it is
// zero for DarkStar, which derives its key entirely from the handshake.
func (m CipherMode) saltSize() int {
	switch m {
	case AES128GCM:
		return 16
	case AES256GCM, ChaCha20IETFPoly1305:
		return 32
	default:
		return 0
	}
}
