// Copyright (c) 2023 BVK Chaitanya

// Package idgen generates client order ids for the exchange. Ids are derived
// from a seed and a position in the sequence, so a generator restarted from a
// saved offset never repeats an id handed out before the offset was saved.
package idgen

import (
	"encoding/binary"
	"fmt"
	"os"
	"regexp"
	"sync"

	"github.com/google/uuid"
)

// MaxLen is the longest client order id accepted by the exchanges.
const MaxLen = 36

var prefixRe = regexp.MustCompile(`^[a-zA-Z0-9_-]*$`)

type Generator struct {
	prefix string
	base   uuid.UUID

	mu   sync.Mutex
	next uint64
}

// New creates a generator for the seed starting at the given offset. Prefix
// is prepended to every id and must leave room for the 32 hex digits.
func New(prefix, seed string, offset uint64) (*Generator, error) {
	if !prefixRe.MatchString(prefix) {
		return nil, fmt.Errorf("client id prefix %q has invalid characters: %w", prefix, os.ErrInvalid)
	}
	if len(prefix)+32 > MaxLen {
		return nil, fmt.Errorf("client id prefix %q is too long: %w", prefix, os.ErrInvalid)
	}
	g := &Generator{
		prefix: prefix,
		base:   uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)),
		next:   offset,
	}
	return g, nil
}

// Offset returns the position of the next id.
func (g *Generator) Offset() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.next
}

// Next returns the id at the current offset and advances the offset.
func (g *Generator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.At(g.next)
	g.next++
	return id
}

// Revert moves the offset back by one so that the last id can be handed out
// again. Used when an id was never sent to the exchange.
func (g *Generator) Revert() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.next > 0 {
		g.next--
	}
}

// At returns the id at the given offset without changing the generator.
func (g *Generator) At(offset uint64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], offset)
	id := uuid.NewSHA1(g.base, buf[:])
	return fmt.Sprintf("%s%x", g.prefix, id[:])
}
