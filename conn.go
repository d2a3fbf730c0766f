package shadowswift

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"time"

	"github.com/parall4x/ShadowSwift/metrics"
)

// handshakeState is the unexported sum type backing the data model's
// HandshakeState: a connection is either pre-handshake (handshakeStart) or
// has a finished handshake carrying derived key material
// (handshakeFinished). Internal code only ever holds a handshakeFinished
// once it starts building AEAD engines, so packing plaintext before a
// completed handshake has no code path to reach.
type handshakeState interface {
	isHandshakeState()
}

type handshakeStart struct{}

func (handshakeStart) isHandshakeState() {}

type handshakeFinished struct {
	// psk is the classic-mode pre-shared key each direction used to derive
	// its own per-salt session key; nil for DarkStar, whose shared key
	// lives only inside the already-built AEAD engines.
	psk []byte
}

func (handshakeFinished) isHandshakeState() {}

// HalfConn is one direction of a Conn: its own AEAD engine and nonce
// counter, independent of the other direction (spec.md §5, §9 duplex
// split).
type HalfConn struct {
	engine    *aeadEngine
	direction string // "read" or "write", for metrics labeling
	recorder  *metrics.Recorder
}

// Conn wraps a reliable bidirectional byte stream with Shadowsocks AEAD
// framing. It owns two independent HalfConns and a raw net.Conn.
type Conn struct {
	raw    net.Conn
	cfg    *ShadowConfig
	reader *HalfConn
	writer *HalfConn

	readBuf bytes.Buffer

	state handshakeState
}

// Reader returns the connection's read half: its own AEAD engine and nonce
// counter, independent of Writer.
func (c *Conn) Reader() *HalfConn { return c.reader }

// Writer returns the connection's write half.
func (c *Conn) Writer() *HalfConn { return c.writer }

// Dial opens network to cfg.Endpoint() and runs the handshake appropriate
// to cfg.Mode(), returning a ready-to-use Conn. network is typically "tcp".
func Dial(ctx context.Context, network string, cfg *ShadowConfig, recorder *metrics.Recorder) (*Conn, error) {
	var d net.Dialer
	raw, err := d.DialContext(ctx, network, cfg.Endpoint())
	if err != nil {
		return nil, newTransportError("dial", err)
	}

	c := &Conn{raw: raw, cfg: cfg, state: handshakeStart{}}
	if err := c.clientHandshake(recorder); err != nil {
		raw.Close()
		return nil, err
	}
	recorder.ConnOpened()
	return c, nil
}

// clientHandshake dispatches to the classic salt exchange or the DarkStar
// initiator flow depending on cfg.Mode(), and builds the two HalfConns.
func (c *Conn) clientHandshake(recorder *metrics.Recorder) error {
	switch {
	case c.cfg.mode.isDarkStar():
		sharedKey, err := runDarkStarClient(c.raw, c.cfg)
		if err != nil {
			recorder.HandshakeResult("client", false)
			return err
		}
		recorder.HandshakeResult("client", true)
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

// installSharedKey builds both HalfConns from a single DarkStar shared key,
// per spec.md §4.4's fixed choice of a shared key in both directions.
func (c *Conn) installSharedKey(sharedKey []byte, recorder *metrics.Recorder) error {
	readAEAD, err := newAEAD(c.cfg.mode, sharedKey)
	if err != nil {
		return err
	}
	writeAEAD, err := newAEAD(c.cfg.mode, sharedKey)
	if err != nil {
		return err
	}
	zeroBytes(sharedKey)
	c.reader = &HalfConn{engine: newAEADEngine(readAEAD), direction: "read", recorder: recorder}
	c.writer = &HalfConn{engine: newAEADEngine(writeAEAD), direction: "write", recorder: recorder}
	c.state = handshakeFinished{}
	return nil
}

// installClassicKeys generates this side's write salt, sends it, reads the
// peer's write salt, and derives each direction's session key from the
// shared PSK and that direction's own salt (spec.md §4.1 "the sender
// prepends the raw salt to the stream").
func (c *Conn) installClassicKeys(recorder *metrics.Recorder) error {
	psk := deriveLegacyKey(c.cfg.password, c.cfg.mode.keySize())
	saltLen := c.cfg.mode.saltSize()

	writeSalt := make([]byte, saltLen)
	if _, err := rand.Read(writeSalt); err != nil {
		return newHandshakeError("installClassicKeys", err)
	}
	if _, err := c.raw.Write(writeSalt); err != nil {
		return newTransportError("installClassicKeys", err)
	}
	writeKey, err := deriveSessionKey(psk, writeSalt, c.cfg.mode.keySize())
	if err != nil {
		return err
	}
	writeAEAD, err := newAEAD(c.cfg.mode, writeKey)
	if err != nil {
		return err
	}
	zeroBytes(writeKey)

	readSalt := make([]byte, saltLen)
	if _, err := io.ReadFull(c.raw, readSalt); err != nil {
		return newTransportError("installClassicKeys", err)
	}
	readKey, err := deriveSessionKey(psk, readSalt, c.cfg.mode.keySize())
	if err != nil {
		return err
	}
	readAEAD, err := newAEAD(c.cfg.mode, readKey)
	if err != nil {
		return err
	}
	zeroBytes(readKey)

	c.reader = &HalfConn{engine: newAEADEngine(readAEAD), direction: "read", recorder: recorder}
	c.writer = &HalfConn{engine: newAEADEngine(writeAEAD), direction: "write", recorder: recorder}
	c.state = handshakeFinished{psk: psk}
	return nil
}

// Write slices p into ≤16384-byte chunks, packs each, and writes them to
// the underlying stream.
func (c *Conn) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		n := len(p)
		if n > maxChunkPayload {
			n = maxChunkPayload
		}
		chunk, err := c.writer.engine.pack(p[:n])
		if err != nil {
			return total, err
		}
		if _, err := c.raw.Write(chunk); err != nil {
			return total, newTransportError("write", err)
		}
		c.writer.recorder.ChunkBytes("write", n)
		total += n
		p = p[n:]
	}
	return total, nil
}

// Read returns up to len(p) bytes from the decrypted stream, pulling and
// unpacking further chunks from the underlying connection as needed. A
// mid-chunk EOF is a protocol violation and is surfaced as a FramingError
// rather than a plain io.EOF.
func (c *Conn) Read(p []byte) (int, error) {
	if c.readBuf.Len() == 0 {
		if err := c.fillReadBuf(); err != nil {
			return 0, err
		}
	}
	return c.readBuf.Read(p)
}

func (c *Conn) fillReadBuf() error {
	var sealedLen [lengthFieldSize + tagSize]byte
	_, err := io.ReadFull(c.raw, sealedLen[:])
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return newFramingError("fillReadBuf", err)
	}
	if err != nil {
		return newTransportError("read", err)
	}

	n, err := c.reader.engine.openLength(sealedLen[:])
	if err != nil {
		return err
	}

	sealedPayload := make([]byte, n+tagSize)
	if _, err := io.ReadFull(c.raw, sealedPayload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return newFramingError("fillReadBuf", err)
		}
		return newTransportError("read", err)
	}
	plaintext, err := c.reader.engine.openPayload(sealedPayload)
	if err != nil {
		return err
	}
	c.reader.recorder.ChunkBytes("read", n)
	c.readBuf.Write(plaintext)
	return nil
}

// Close closes the underlying connection and zeroizes this Conn's key
// material; it does not flush any pending chunk.
func (c *Conn) Close() error {
	if c.writer != nil {
		c.writer.recorder.ConnClosed()
	}
	c.zeroizeKeys()
	return c.raw.Close()
}

// zeroBytes overwrites b with zeros in place. Used to scrub transient key
// material (ECDH outputs, derived session keys) as soon as it has been
// consumed, per spec.md §5's secret-hygiene requirement.
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func (c *Conn) zeroizeKeys() {
	if fin, ok := c.state.(handshakeFinished); ok && fin.psk != nil {
		zeroBytes(fin.psk)
	}
}

// LocalAddr and RemoteAddr satisfy net.Conn for callers that want to treat
// a Conn as a drop-in replacement for the raw stream.
func (c *Conn) LocalAddr() net.Addr  { return c.raw.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr { return c.raw.RemoteAddr() }

// SetDeadline, SetReadDeadline, and SetWriteDeadline pass through to the
// underlying stream; they bound raw I/O, not chunk boundaries.
func (c *Conn) SetDeadline(t time.Time) error      { return c.raw.SetDeadline(t) }
func (c *Conn) SetReadDeadline(t time.Time) error  { return c.raw.SetReadDeadline(t) }
func (c *Conn) SetWriteDeadline(t time.Time) error { return c.raw.SetWriteDeadline(t) }
