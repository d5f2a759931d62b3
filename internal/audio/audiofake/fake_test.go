package audiofake

import (
	"context"
	"testing"
	"time"
)

func TestCapture_ReadsBlocksThenBlocks(t *testing.T) {
	c := NewCapture(48000, 2, [][]byte{{1, 2}, {3, 4}})

	b1, err := c.Read(context.Background())
	if err != nil || len(b1) != 2 || b1[0] != 1 {
		t.Fatalf("first Read = %v, %v", b1, err)
	}
	b2, err := c.Read(context.Background())
	if err != nil || len(b2) != 2 || b2[0] != 3 {
		t.Fatalf("second Read = %v, %v", b2, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Read(ctx); err == nil {
		t.Fatal("expected Read to block and return ctx error once blocks are exhausted")
	}
}

func TestPlayback_RecordsWrites(t *testing.T) {
	p := NewPlayback()
	if err := p.Write(context.Background(), []byte{9, 9}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	writes := p.Writes()
	if len(writes) != 1 || writes[0][0] != 9 {
		t.Fatalf("Writes() = %v", writes)
	}
	if p.Closed() {
		t.Fatal("expected not closed before Close")
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !p.Closed() {
		t.Fatal("expected closed after Close")
	}
}
