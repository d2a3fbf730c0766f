package shadowswift

import "testing"

func TestNonceCounterIncrementsLittleEndian(t *testing.T) {
	var n nonceCounter

	first, err := n.next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	want := [nonceSize]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	if first != want {
		t.Errorf("first nonce = %v, want %v", first, want)
	}

	second, err := n.next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	want[0] = 1
	if second != want {
		t.Errorf("second nonce = %v, want %v", second, want)
	}
}

func TestNonceCounterNeverRepeats(t *testing.T) {
	var n nonceCounter
	seen := make(map[[nonceSize]byte]bool)
	for i := 0; i < 1000; i++ {
		nonce, err := n.next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if seen[nonce] {
			t.Fatalf("nonce %v repeated at iteration %d", nonce, i)
		}
		seen[nonce] = true
	}
}

func TestNonceCounterExhaustion(t *testing.T) {
	n := nonceCounter{counter: ^uint64(0), used: true}
	if _, err := n.next(); err == nil {
		t.Errorf("expected an error when the nonce counter wraps")
	}
}
