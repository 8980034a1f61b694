package store

import (
	"errors"
	"testing"
)

func TestMemoryGetSet(t *testing.T) {
	s := NewMemory()

	if _, ok, err := s.Get("missing"); ok || err != nil {
		t.Fatalf("Get(missing) = ok=%v err=%v, want miss", ok, err)
	}

	if err := s.Set("k", []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	value, ok, err := s.Get("k")
	if err != nil || !ok {
		t.Fatalf("Get(k) = ok=%v err=%v, want hit", ok, err)
	}
	if string(value) != "v" {
		t.Errorf("Get(k) = %q, want %q", value, "v")
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestMemoryOverwrite(t *testing.T) {
	s := NewMemory()
	if err := s.Set("k", []byte("old")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set("k", []byte("new")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	value, _, _ := s.Get("k")
	if string(value) != "new" {
		t.Errorf("Get(k) = %q, want %q", value, "new")
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestMemoryValueIsolation(t *testing.T) {
	s := NewMemory()
	original := []byte("safe")
	if err := s.Set("k", original); err != nil {
		t.Fatalf("Set: %v", err)
	}
	original[0] = 'X'

	value, _, _ := s.Get("k")
	if string(value) != "safe" {
		t.Errorf("stored value mutated through caller slice: %q", value)
	}

	value[0] = 'Y'
	again, _, _ := s.Get("k")
	if string(again) != "safe" {
		t.Errorf("stored value mutated through returned slice: %q", again)
	}
}

func TestMemoryDelete(t *testing.T) {
	s := NewMemory()
	if err := s.Set("k", []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Delete("k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.Get("k"); ok {
		t.Error("Get after Delete reported a hit")
	}
	if err := s.Delete("k"); err != nil {
		t.Errorf("Delete of absent key: %v, want nil", err)
	}
}

func TestMemoryClosed(t *testing.T) {
	s := NewMemory()
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, _, err := s.Get("k"); !errors.Is(err, ErrClosed) {
		t.Errorf("Get after Close = %v, want ErrClosed", err)
	}
	if err := s.Set("k", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Set after Close = %v, want ErrClosed", err)
	}
	if err := s.Delete("k"); !errors.Is(err, ErrClosed) {
		t.Errorf("Delete after Close = %v, want ErrClosed", err)
	}
}

func TestMemoryStats(t *testing.T) {
	s := NewMemory()
	s.Get("miss")
	s.Set("k", []byte("v"))
	s.Get("k")
	s.Get("k")

	stats := s.Stats()
	if stats.Hits != 2 {
		t.Errorf("Hits = %d, want 2", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("Misses = %d, want 1", stats.Misses)
	}
	if stats.Writes != 1 {
		t.Errorf("Writes = %d, want 1", stats.Writes)
	}
	if stats.LastWrite.IsZero() {
		t.Error("LastWrite was not recorded")
	}
}
