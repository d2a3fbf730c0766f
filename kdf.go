package shadowswift

import (
	"crypto/md5"
	"crypto/sha1"
	"io"

	"golang.org/x/crypto/hkdf"
)

// subkeyInfo is the fixed HKDF info parameter shared by every classic
// cipher mode.
var subkeyInfo = []byte("ss-subkey")

// deriveLegacyKey implements EVP_BytesToKey as used by OpenSSL's legacy key
// derivation: repeated MD5(prev || password) chaining until keyLen bytes
// have been produced. Shadowsocks uses this, with no salt, to turn a
// user-supplied password into the master key (PSK) that HKDF then expands
// per connection.
func deriveLegacyKey(password string, keyLen int) []byte {
	var (
		key  []byte
		prev []byte
	)
	for len(key) < keyLen {
		h := md5.New()
		h.Write(prev)
		h.Write([]byte(password))
		prev = h.Sum(nil)
		key = append(key, prev...)
	}
	return key[:keyLen]
}

// deriveSessionKey expands a pre-shared key and a per-connection salt into
// the AEAD session key via HKDF-SHA1, per RFC 5869 with info "ss-subkey".
func deriveSessionKey(psk, salt []byte, keyLen int) ([]byte, error) {
	sessionKey := make([]byte, keyLen)
	r := hkdf.New(sha1.New, psk, salt, subkeyInfo)
	if _, err := io.ReadFull(r, sessionKey); err != nil {
		return nil, newHandshakeError("deriveSessionKey", err)
	}
	return sessionKey, nil
}
