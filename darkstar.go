package shadowswift

import (
	"crypto/ecdh"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"math/big"
	"net"
)

// darkStarTag, darkStarClientTag and darkStarServerTag are the fixed
// domain-separation tags mixed into the confirmation codes and shared-key
// derivation.
var (
	darkStarTag       = []byte("DarkStar")
	darkStarClientTag = []byte("client")
	darkStarServerTag = []byte("server")
)

var errInvalidPoint = errors.New("invalid P-256 point encoding")

// compactPoint is the 32-byte x-only encoding DarkStar uses for every P-256
// public key on the wire: the y-coordinate's parity is fixed (even) rather
// than transmitted, so decode always recovers the even-y root.
type compactPoint [32]byte

// darkStarKeyPair is an ephemeral or persistent P-256 keypair together with
// its compact public encoding.
type darkStarKeyPair struct {
	priv    *ecdh.PrivateKey
	pub     compactPoint
	ecdhPub *ecdh.PublicKey
}

// generateDarkStarKeyPair produces a P-256 keypair whose public point
// happens to have even y, so it round-trips through the compact encoding;
// keys with odd y are discarded and a fresh key is drawn. Rejection sampling over fresh keys is bounded: P-256 has
// no structural bias toward odd-y points, so a handful of attempts succeeds
// with overwhelming probability (spec.md §9).
func generateDarkStarKeyPair() (*darkStarKeyPair, error) {
	curve := ecdh.P256()
	const maxAttempts = 16
	for attempt := 0; attempt < maxAttempts; attempt++ {
		priv, err := curve.GenerateKey(rand.Reader)
		if err != nil {
			return nil, newHandshakeError("generateKeyPair", err)
		}
		compact, ecdhPub, ok := toCompactEvenY(priv)
		if !ok {
			continue
		}
		return &darkStarKeyPair{priv: priv, pub: compact, ecdhPub: ecdhPub}, nil
	}
	return nil, newHandshakeError("generateKeyPair", errors.New("exhausted attempts finding an even-y point"))
}

// toCompactEvenY reads priv's uncompressed public point from crypto/ecdh to
// recover its y-coordinate parity, and reports whether it is even. DarkStar never flips a key to force parity (that would require
// negating the private scalar mod the curve order, which crypto/ecdh does
// not expose); instead generateDarkStarKeyPair retries with a fresh key.
func toCompactEvenY(priv *ecdh.PrivateKey) (compactPoint, *ecdh.PublicKey, bool) {
	var out compactPoint
	raw := priv.PublicKey().Bytes() // uncompressed: 0x04 || X(32) || Y(32)
	if len(raw) != 65 || raw[0] != 0x04 {
		return out, nil, false
	}
	x, y := raw[1:33], raw[33:65]
	if new(big.Int).SetBytes(y).Bit(0) != 0 {
		return out, nil, false
	}
	copy(out[:], x)
	return out, priv.PublicKey(), true
}

// decodeCompactPoint reconstructs a full P-256 public key from its 32-byte
// x-only encoding, choosing the even-y square root, and rejects values that
// are not on the curve.
func decodeCompactPoint(p compactPoint) (*ecdh.PublicKey, error) {
	curve := elliptic.P256()
	params := curve.Params()
	x := new(big.Int).SetBytes(p[:])
	if x.Cmp(params.P) >= 0 {
		return nil, newHandshakeError("decodeCompactPoint", errInvalidPoint)
	}

	// y^2 = x^3 - 3x + b (mod p)
	y2 := new(big.Int).Exp(x, big.NewInt(3), params.P)
	threeX := new(big.Int).Mul(x, big.NewInt(3))
	y2.Sub(y2, threeX)
	y2.Add(y2, params.B)
	y2.Mod(y2, params.P)

	y := new(big.Int).ModSqrt(y2, params.P)
	if y == nil {
		return nil, newHandshakeError("decodeCompactPoint", errInvalidPoint)
	}
	if y.Bit(0) != 0 {
		y.Sub(params.P, y)
	}

	uncompressed := elliptic.Marshal(curve, x, y)
	pub, err := ecdh.P256().NewPublicKey(uncompressed)
	if err != nil {
		return nil, newHandshakeError("decodeCompactPoint", err)
	}
	return pub, nil
}

// serverIdentifier encodes the server endpoint as ip_bytes || port_be16,
// using 4 bytes for IPv4 and 16 bytes for IPv6. It is undefined (and
// rejected) for hostnames, matching validateIPEndpoint's ShadowConfig
// precondition.
func serverIdentifier(host string, port uint16) ([]byte, error) {
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, newHandshakeError("serverIdentifier", errors.New("host is not a literal IP"))
	}
	var addrBytes []byte
	if v4 := ip.To4(); v4 != nil {
		addrBytes = v4
	} else {
		addrBytes = ip.To16()
	}
	out := make([]byte, 0, len(addrBytes)+2)
	out = append(out, addrBytes...)
	out = append(out, byte(port>>8), byte(port))
	return out, nil
}

// darkStarClientConfirmation computes CC_client = SHA-256(ecdh(cePriv,
// spPub) || serverId || spPub || cePub || "DarkStar" || "client").
func darkStarClientConfirmation(sharedEphemeralStatic []byte, serverID []byte, spPub, cePub compactPoint) [32]byte {
	h := sha256.New()
	h.Write(sharedEphemeralStatic)
	h.Write(serverID)
	h.Write(spPub[:])
	h.Write(cePub[:])
	h.Write(darkStarTag)
	h.Write(darkStarClientTag)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// darkStarServerConfirmation computes CC_server = HMAC-SHA-256(sharedKey,
// serverId || sePub || cePub || "DarkStar" || "server").
func darkStarServerConfirmation(sharedKey []byte, serverID []byte, sePub, cePub compactPoint) [32]byte {
	mac := hmac.New(sha256.New, sharedKey)
	mac.Write(serverID)
	mac.Write(sePub[:])
	mac.Write(cePub[:])
	mac.Write(darkStarTag)
	mac.Write(darkStarServerTag)
	var out [32]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// darkStarSharedKey computes sharedKey = SHA-256(ecdh(ee) || ecdh(es) ||
// serverId || cePub || sePub || "DarkStar" || "server").
func darkStarSharedKey(eeShared, esShared []byte, serverID []byte, cePub, sePub compactPoint) [32]byte {
	h := sha256.New()
	h.Write(eeShared)
	h.Write(esShared)
	h.Write(serverID)
	h.Write(cePub[:])
	h.Write(sePub[:])
	h.Write(darkStarTag)
	h.Write(darkStarServerTag)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// ecdhSharedSecret computes a raw ECDH shared secret between priv and pub.
func ecdhSharedSecret(priv *ecdh.PrivateKey, pub *ecdh.PublicKey) ([]byte, error) {
	secret, err := priv.ECDH(pub)
	if err != nil {
		return nil, newHandshakeError("ecdh", err)
	}
	return secret, nil
}

// constantTimeEqual32 compares two 32-byte confirmation codes without
// branching on their contents.
func constantTimeEqual32(a, b [32]byte) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
