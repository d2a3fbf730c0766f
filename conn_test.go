package shadowswift

import (
	"context"
	"testing"
	"time"
)

// testPort is fixed rather than discovered via ":0" because the DarkStar
// server identifier is computed from the configured port, which must match
// on both sides of the handshake — a dynamically assigned listener port
// would require plumbing it back into the server's own ShadowConfig before
// the first connection arrives.
const testPort = 18388

func TestConnRoundTripClassicMode(t *testing.T) {
	serverCfg, err := NewConfig(AES256GCM, WithPassword("hunter2"), WithServerEndpoint("127.0.0.1", testPort))
	if err != nil {
		t.Fatalf("NewConfig (server): %v", err)
	}
	ln, err := Listen("tcp", "127.0.0.1:18388", serverCfg, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	serverConn, serverErr := acceptAsync(ln)

	clientCfg, err := NewConfig(AES256GCM, WithPassword("hunter2"), WithServerEndpoint("127.0.0.1", testPort))
	if err != nil {
		t.Fatalf("NewConfig (client): %v", err)
	}
	client := dialOrFatal(t, clientCfg)
	defer client.Close()

	server := <-serverConn
	if err := <-serverErr; err != nil {
		t.Fatalf("Accept: %v", err)
	}
	defer server.Close()

	assertRoundTrip(t, client, server)
}

func TestConnRoundTripDarkStar(t *testing.T) {
	static, err := generateDarkStarKeyPair()
	if err != nil {
		t.Fatalf("generateDarkStarKeyPair: %v", err)
	}

	serverCfg, err := NewConfig(DarkStarServer,
		WithServerPersistentPrivateKey(static.priv.Bytes()),
		WithServerEndpoint("127.0.0.1", testPort+1))
	if err != nil {
		t.Fatalf("NewConfig (server): %v", err)
	}
	ln, err := Listen("tcp", "127.0.0.1:18389", serverCfg, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	serverConn, serverErr := acceptAsync(ln)

	clientCfg, err := NewConfig(DarkStarClient,
		WithServerPersistentPublicKey(static.pub),
		WithServerEndpoint("127.0.0.1", testPort+1))
	if err != nil {
		t.Fatalf("NewConfig (client): %v", err)
	}
	client := dialOrFatal(t, clientCfg)
	defer client.Close()

	server := <-serverConn
	if err := <-serverErr; err != nil {
		t.Fatalf("Accept: %v", err)
	}
	defer server.Close()

	assertRoundTrip(t, client, server)
}

func acceptAsync(ln *Listener) (<-chan *Conn, <-chan error) {
	connCh := make(chan *Conn, 1)
	errCh := make(chan error, 1)
	go func() {
		c, err := ln.Accept()
		connCh <- c
		errCh <- err
	}()
	return connCh, errCh
}

func dialOrFatal(t *testing.T, cfg *ShadowConfig) *Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Dial(ctx, "tcp", cfg, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	return conn
}

func assertRoundTrip(t *testing.T, client, server *Conn) {
	t.Helper()

	message := []byte("the quick brown fox jumps over the lazy dog")
	done := make(chan error, 1)
	go func() {
		_, err := client.Write(message)
		done <- err
	}()

	buf := make([]byte, len(message))
	if _, err := readFullConn(server, buf); err != nil {
		t.Fatalf("server Read: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("client Write: %v", err)
	}
	if string(buf) != string(message) {
		t.Errorf("round trip: got %q, want %q", buf, message)
	}
}

func readFullConn(c *Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := c.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
