package shadowswift

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// maxChunkPayload is the largest payload a single chunk may carry
// (spec.md §4.2, Chunk wire frame).
const maxChunkPayload = 16384

// lengthFieldSize and tagSize are the fixed-width pieces of a wire chunk:
// len_ct(2) || len_tag(16) || payload_ct(len) || payload_tag(16).
const (
	lengthFieldSize = 2
	tagSize         = 16
)

// newAEAD builds the cipher.AEAD for a session key under the given mode.
// DarkStar modes always use ChaCha20-IETF-Poly1305: the handshake's 32-byte
// shared key matches ChaCha20's key size exactly and avoids any dependency
// on AES-NI for the obfuscation use case DarkStar targets.
func newAEAD(mode CipherMode, key []byte) (cipher.AEAD, error) {
	switch mode {
	case AES128GCM, AES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, newHandshakeError("newAEAD", err)
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, newHandshakeError("newAEAD", err)
		}
		return aead, nil
	case ChaCha20IETFPoly1305, DarkStarClient, DarkStarServer:
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			return nil, newHandshakeError("newAEAD", err)
		}
		return aead, nil
	default:
		return nil, newHandshakeError("newAEAD", errors.New("unsupported cipher mode"))
	}
}

// aeadEngine packs and unpacks chunks for one direction of a connection. It
// owns the AEAD instance and the monotonically increasing nonce counter for
// that direction; the two directions of a Conn never share an engine
// (spec.md §5, duplex split).
type aeadEngine struct {
	aead  cipher.AEAD
	nonce nonceCounter
}

func newAEADEngine(aead cipher.AEAD) *aeadEngine {
	return &aeadEngine{aead: aead}
}

// pack encrypts plaintext into a complete wire chunk: the sealed 2-byte
// big-endian length followed by the sealed payload. plaintext must be
// between 1 and maxChunkPayload bytes (spec.md I3).
func (e *aeadEngine) pack(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 || len(plaintext) > maxChunkPayload {
		return nil, &PayloadTooLargeError{Size: len(plaintext), Max: maxChunkPayload}
	}

	lenNonce, err := e.nonce.next()
	if err != nil {
		return nil, err
	}
	lenBuf := [lengthFieldSize]byte{byte(len(plaintext) >> 8), byte(len(plaintext))}
	sealedLen := e.aead.Seal(nil, lenNonce[:], lenBuf[:], nil)

	payloadNonce, err := e.nonce.next()
	if err != nil {
		return nil, err
	}
	sealedPayload := e.aead.Seal(nil, payloadNonce[:], plaintext, nil)

	out := make([]byte, 0, len(sealedLen)+len(sealedPayload))
	out = append(out, sealedLen...)
	out = append(out, sealedPayload...)
	return out, nil
}

// openLength decrypts a sealed length field, returning the payload length
// it encodes. Callers must then read exactly that many ciphertext bytes
// plus a tag and pass them to openPayload.
func (e *aeadEngine) openLength(sealedLen []byte) (int, error) {
	lenNonce, err := e.nonce.next()
	if err != nil {
		return 0, err
	}
	lenBuf, err := e.aead.Open(nil, lenNonce[:], sealedLen, nil)
	if err != nil {
		return 0, newFramingError("openLength", err)
	}
	n := int(lenBuf[0])<<8 | int(lenBuf[1])
	if n < 1 || n > maxChunkPayload {
		return 0, newFramingError("openLength", errInvalidChunkLength)
	}
	return n, nil
}

// openPayload decrypts a sealed payload of the length previously returned
// by openLength.
func (e *aeadEngine) openPayload(sealedPayload []byte) ([]byte, error) {
	payloadNonce, err := e.nonce.next()
	if err != nil {
		return nil, err
	}
	plaintext, err := e.aead.Open(nil, payloadNonce[:], sealedPayload, nil)
	if err != nil {
		return nil, newFramingError("openPayload", err)
	}
	return plaintext, nil
}

var errInvalidChunkLength = errors.New("chunk length out of range")
