package shadowswift

import (
	"crypto/ecdh"
	"io"
	"net"
)

// runDarkStarClient performs the initiator flow of spec.md §4.4 over conn
// and returns the derived 32-byte shared key.
func runDarkStarClient(conn net.Conn, cfg *ShadowConfig) ([]byte, error) {
	serverID, err := serverIdentifier(cfg.serverHost, cfg.serverPort)
	if err != nil {
		return nil, err
	}
	spPub, err := decodeCompactPoint(compactPoint(cfg.serverPersistentPublicKey))
	if err != nil {
		return nil, newHandshakeError("clientHandshake", err)
	}

	ce, err := generateDarkStarKeyPair()
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write(ce.pub[:]); err != nil {
		return nil, newTransportError("clientHandshake", err)
	}

	esShared, err := ecdhSharedSecret(ce.priv, spPub)
	if err != nil {
		return nil, err
	}
	ccClient := darkStarClientConfirmation(esShared, serverID, compactPoint(cfg.serverPersistentPublicKey), ce.pub)
	if _, err := conn.Write(ccClient[:]); err != nil {
		zeroBytes(esShared)
		return nil, newTransportError("clientHandshake", err)
	}

	var sePubRaw compactPoint
	if _, err := io.ReadFull(conn, sePubRaw[:]); err != nil {
		zeroBytes(esShared)
		return nil, newTransportError("clientHandshake", err)
	}
	sePub, err := decodeCompactPoint(sePubRaw)
	if err != nil {
		zeroBytes(esShared)
		return nil, newHandshakeError("clientHandshake", err)
	}

	eeShared, err := ecdhSharedSecret(ce.priv, sePub)
	if err != nil {
		zeroBytes(esShared)
		return nil, err
	}
	sharedKey := darkStarSharedKey(eeShared, esShared, serverID, ce.pub, sePubRaw)
	zeroBytes(esShared)
	zeroBytes(eeShared)

	var ccServerObserved [32]byte
	if _, err := io.ReadFull(conn, ccServerObserved[:]); err != nil {
		return nil, newTransportError("clientHandshake", err)
	}
	ccServerExpected := darkStarServerConfirmation(sharedKey[:], serverID, sePubRaw, ce.pub)
	if !constantTimeEqual32(ccServerObserved, ccServerExpected) {
		return nil, newHandshakeError("clientHandshake", errConfirmationMismatch)
	}

	return sharedKey[:], nil
}

// runDarkStarServer performs the responder flow of spec.md §4.4 over conn
// and returns the derived 32-byte shared key.
func runDarkStarServer(conn net.Conn, cfg *ShadowConfig) ([]byte, error) {
	serverID, err := serverIdentifier(cfg.serverHost, cfg.serverPort)
	if err != nil {
		return nil, err
	}
	spPriv, spPub, err := darkStarStaticKeyPair(cfg.serverPersistentPrivateKey)
	if err != nil {
		return nil, err
	}

	var cePubRaw compactPoint
	if _, err := io.ReadFull(conn, cePubRaw[:]); err != nil {
		return nil, newTransportError("serverHandshake", err)
	}
	cePub, err := decodeCompactPoint(cePubRaw)
	if err != nil {
		return nil, newHandshakeError("serverHandshake", err)
	}

	var ccClientObserved [32]byte
	if _, err := io.ReadFull(conn, ccClientObserved[:]); err != nil {
		return nil, newTransportError("serverHandshake", err)
	}
	esShared, err := ecdhSharedSecret(spPriv, cePub)
	if err != nil {
		return nil, err
	}
	ccClientExpected := darkStarClientConfirmation(esShared, serverID, spPub, cePubRaw)
	if !constantTimeEqual32(ccClientObserved, ccClientExpected) {
		zeroBytes(esShared)
		return nil, newHandshakeError("serverHandshake", errConfirmationMismatch)
	}

	se, err := generateDarkStarKeyPair()
	if err != nil {
		zeroBytes(esShared)
		return nil, err
	}
	if _, err := conn.Write(se.pub[:]); err != nil {
		zeroBytes(esShared)
		return nil, newTransportError("serverHandshake", err)
	}

	eeShared, err := ecdhSharedSecret(se.priv, cePub)
	if err != nil {
		zeroBytes(esShared)
		return nil, err
	}
	sharedKey := darkStarSharedKey(eeShared, esShared, serverID, cePubRaw, se.pub)
	zeroBytes(esShared)
	zeroBytes(eeShared)

	ccServer := darkStarServerConfirmation(sharedKey[:], serverID, se.pub, cePubRaw)
	if _, err := conn.Write(ccServer[:]); err != nil {
		return nil, newTransportError("serverHandshake", err)
	}

	return sharedKey[:], nil
}

// darkStarStaticKeyPair rebuilds the server's persistent keypair from its
// raw P-256 private scalar, for use on the responder side of the
// handshake. The operator is expected to have provisioned a scalar whose
// public point already has even y (generated the same way
// generateDarkStarKeyPair retries for ephemeral keys); an odd-y static key
// is rejected rather than silently renegotiated.
func darkStarStaticKeyPair(rawPriv []byte) (*ecdh.PrivateKey, compactPoint, error) {
	priv, err := ecdh.P256().NewPrivateKey(rawPriv)
	if err != nil {
		return nil, compactPoint{}, newConfigError("darkStarStaticKeyPair", err)
	}
	compact, _, ok := toCompactEvenY(priv)
	if !ok {
		return nil, compactPoint{}, newConfigError("darkStarStaticKeyPair", errOddParityStaticKey)
	}
	return priv, compact, nil
}
