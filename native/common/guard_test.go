package common

import (
	"errors"
	"testing"
)

func TestGuardNilViewPermits(t *testing.T) {
	if err := Guard(nil, "leverage"); err != nil {
		t.Fatalf("nil view should permit: %v", err)
	}
}

func TestGuardPauseSet(t *testing.T) {
	pauses := NewPauseSet("leverage", "")
	if err := Guard(pauses, "leverage"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected pause rejection, got %v", err)
	}
	if err := Guard(pauses, "swap"); err != nil {
		t.Fatalf("unlisted module should permit: %v", err)
	}
	if err := Guard(pauses, ""); err != nil {
		t.Fatalf("empty module name should permit: %v", err)
	}
}
