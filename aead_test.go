package shadowswift

import (
	"bytes"
	"errors"
	"testing"
)

func TestAEADEnginePackUnpackRoundTrip(t *testing.T) {
	for _, mode := range []CipherMode{AES128GCM, AES256GCM, ChaCha20IETFPoly1305} {
		mode := mode
		t.Run(mode.String(), func(t *testing.T) {
			key := make([]byte, mode.keySize())
			for i := range key {
				key[i] = byte(i)
			}

			writeAEAD, err := newAEAD(mode, key)
			if err != nil {
				t.Fatalf("newAEAD: %v", err)
			}
			readAEAD, err := newAEAD(mode, key)
			if err != nil {
				t.Fatalf("newAEAD: %v", err)
			}
			writer := newAEADEngine(writeAEAD)
			reader := newAEADEngine(readAEAD)

			plaintext := []byte("the quick brown fox jumps over the lazy dog")
			chunk, err := writer.pack(plaintext)
			if err != nil {
				t.Fatalf("pack: %v", err)
			}

			n, err := reader.openLength(chunk[:lengthFieldSize+tagSize])
			if err != nil {
				t.Fatalf("openLength: %v", err)
			}
			got, err := reader.openPayload(chunk[lengthFieldSize+tagSize:])
			if err != nil {
				t.Fatalf("openPayload: %v", err)
			}
			if n != len(plaintext) {
				t.Errorf("openLength: got %d, want %d", n, len(plaintext))
			}
			if !bytes.Equal(got, plaintext) {
				t.Errorf("round trip: got %q, want %q", got, plaintext)
			}
		})
	}
}

func TestAEADEnginePackRejectsOversizedPayload(t *testing.T) {
	key := make([]byte, 32)
	aead, err := newAEAD(ChaCha20IETFPoly1305, key)
	if err != nil {
		t.Fatalf("newAEAD: %v", err)
	}
	engine := newAEADEngine(aead)

	_, err = engine.pack(make([]byte, maxChunkPayload+1))
	var tooLarge *PayloadTooLargeError
	if err == nil {
		t.Fatalf("expected PayloadTooLargeError, got nil")
	}
	if !errors.As(err, &tooLarge) {
		t.Fatalf("expected *PayloadTooLargeError, got %T", err)
	}
}

func TestAEADEnginePackRejectsEmptyPayload(t *testing.T) {
	key := make([]byte, 32)
	aead, _ := newAEAD(ChaCha20IETFPoly1305, key)
	engine := newAEADEngine(aead)

	if _, err := engine.pack(nil); err == nil {
		t.Errorf("expected an error packing an empty payload")
	}
}

func TestAEADEngineRejectsCorruptedTag(t *testing.T) {
	key := make([]byte, 32)
	writeAEAD, _ := newAEAD(ChaCha20IETFPoly1305, key)
	readAEAD, _ := newAEAD(ChaCha20IETFPoly1305, key)
	writer := newAEADEngine(writeAEAD)
	reader := newAEADEngine(readAEAD)

	chunk, err := writer.pack([]byte("hello"))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	chunk[len(chunk)-1] ^= 0xFF // flip a bit in the payload tag

	if _, err := reader.openLength(chunk[:lengthFieldSize+tagSize]); err != nil {
		t.Fatalf("openLength: %v", err)
	}
	if _, err := reader.openPayload(chunk[lengthFieldSize+tagSize:]); err == nil {
		t.Errorf("expected an error opening a payload with a corrupted tag")
	}
}

func TestAEADEngineChunkBoundaries(t *testing.T) {
	key := make([]byte, 32)
	aead, _ := newAEAD(ChaCha20IETFPoly1305, key)
	engine := newAEADEngine(aead)

	if _, err := engine.pack(make([]byte, maxChunkPayload)); err != nil {
		t.Errorf("packing exactly maxChunkPayload bytes should succeed: %v", err)
	}
	if _, err := engine.pack(make([]byte, maxChunkPayload+1)); err == nil {
		t.Errorf("packing maxChunkPayload+1 bytes should fail")
	}
}

