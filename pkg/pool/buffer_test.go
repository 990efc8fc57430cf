package pool

import "testing"

func TestFixedBufferPool(t *testing.T) {
	fp := NewFixedBuffer(1024)

	b := fp.Get()
	if b == nil || len(*b) != 1024 {
		t.Fatalf("expected a 1024-byte buffer, got %v", b)
	}

	// Shrink the slice and return it; the pool must restore full length.
	*b = (*b)[:10]
	fp.Put(b)
	b2 := fp.Get()
	if len(*b2) != 1024 {
		t.Errorf("expected restored 1024-byte buffer, got %d", len(*b2))
	}
}

func TestFixedBufferPoolRejectsWrongSize(t *testing.T) {
	fp := NewFixedBuffer(64)

	wrong := make([]byte, 128)
	fp.Put(&wrong) // must be dropped silently
	fp.Put(nil)    // must not panic

	b := fp.Get()
	if cap(*b) != 64 {
		t.Errorf("expected 64-byte capacity, got %d", cap(*b))
	}
}
