package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewPacer_Disabled(t *testing.T) {
	if p := NewPacer(0, 1, zerolog.Nop()); p != nil {
		t.Error("NewPacer(0) should return nil")
	}

	var p *Pacer
	if err := p.Wait(context.Background()); err != nil {
		t.Errorf("nil Pacer Wait() error = %v", err)
	}
}

func TestPacer_SpacesRequests(t *testing.T) {
	p := NewPacer(20, 1, zerolog.Nop()) // 50ms between requests
	ctx := context.Background()

	if err := p.Wait(ctx); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}

	start := time.Now()
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("second Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("second Wait() returned after %v, want >= 30ms", elapsed)
	}
}

func TestPacer_ContextCancelled(t *testing.T) {
	p := NewPacer(0.1, 1, zerolog.Nop()) // one request per 10s
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := p.Wait(ctx); err == nil {
		t.Error("Wait() should fail when the context expires before a token is available")
	}
}
