// Copyright (c) 2023 BVK Chaitanya

package idgen

import (
	"math/rand"
	"strings"
	"testing"
)

func TestIDGen(t *testing.T) {
	g1, err := New("sb-", "unique seed", 0)
	if err != nil {
		t.Fatal(err)
	}
	g1ids := make(map[uint64]string)
	seen := make(map[string]bool)
	for i := uint64(0); i < 50; i++ {
		id := g1.Next()
		if len(id) > MaxLen {
			t.Fatalf("id %q is longer than %d", id, MaxLen)
		}
		if !strings.HasPrefix(id, "sb-") {
			t.Fatalf("id %q doesn't have the prefix", id)
		}
		if seen[id] {
			t.Fatalf("id %q is repeated", id)
		}
		seen[id] = true
		g1ids[i] = id
	}

	g2, err := New("sb-", "unique seed", 10)
	if err != nil {
		t.Fatal(err)
	}
	for i := uint64(10); i < 50; i++ {
		if a, b := g1ids[i], g2.Next(); a != b {
			t.Fatalf("offset %d: want %s, got %s", i, a, b)
		}
	}

	g3, _ := New("sb-", "other seed", 0)
	if g3.Next() == g1ids[0] {
		t.Fatalf("different seeds must generate different ids")
	}
}

func TestIDGenOffset(t *testing.T) {
	g1, _ := New("sb-", t.Name(), 0)
	offset := rand.Intn(20)
	for i := 0; i < offset; i++ {
		g1.Next()
	}

	g2, _ := New("sb-", t.Name(), g1.Offset())
	if a, b := g1.Next(), g2.Next(); a != b {
		t.Fatalf("want %v, got %v", a, b)
	}
}

func TestIDGenRevert(t *testing.T) {
	g, _ := New("sb-", t.Name(), 0)
	ids := make(map[uint64]string)
	for i := 0; i < 20; i++ {
		ids[g.Offset()] = g.Next()
	}

	g.Revert()
	if want, got := ids[19], g.Next(); want != got {
		t.Fatalf("want %v, got %v", want, got)
	}
	if want, got := g.At(5), ids[5]; want != got {
		t.Fatalf("want %v, got %v", want, got)
	}
}

func TestInvalidPrefix(t *testing.T) {
	if _, err := New("sb with space", "seed", 0); err == nil {
		t.Fatalf("want error for invalid prefix")
	}
	if _, err := New("toolongprefix", "seed", 0); err == nil {
		t.Fatalf("want error for long prefix")
	}
}
