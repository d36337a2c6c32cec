package config

import (
	"fmt"
	"sort"

	"mqtt-cerebro-bridge/pkg/errors"
)

// BoardSnapshot is an immutable view of the configured boards with the
// lookup indexes the bridge needs. It is built once and swapped atomically;
// consumers capture the pointer at the start of a cycle or command and use
// it throughout.
type BoardSnapshot struct {
	boards    []Board
	byAddress map[int][]Board
	bySlug    map[string]Board
	byID      map[string]Board
	addresses []int // enabled, deduplicated, ascending
}

// NewBoardSnapshot validates the board list and builds the indexes.
// Duplicate IDs and duplicate slugs are configuration errors because both
// are used as unique keys in the topic tree.
func NewBoardSnapshot(boards []Board) (*BoardSnapshot, error) {
	s := &BoardSnapshot{
		boards:    make([]Board, len(boards)),
		byAddress: make(map[int][]Board),
		bySlug:    make(map[string]Board),
		byID:      make(map[string]Board),
	}
	copy(s.boards, boards)

	seen := make(map[int]bool)
	for _, b := range s.boards {
		if err := b.Validate(); err != nil {
			return nil, err
		}
		if _, dup := s.byID[b.ID]; dup {
			return nil, errors.NewConfigError("index boards",
				fmt.Errorf("duplicate board id '%s'", b.ID), "boards.id")
		}
		s.byID[b.ID] = b

		slug := b.Slug()
		if prev, dup := s.bySlug[slug]; dup {
			return nil, errors.NewConfigError("index boards",
				fmt.Errorf("boards '%s' and '%s' share topic slug '%s'", prev.ID, b.ID, slug),
				"boards.topic")
		}
		s.bySlug[slug] = b

		s.byAddress[b.Address] = append(s.byAddress[b.Address], b)
		if b.Enabled && !seen[b.Address] {
			seen[b.Address] = true
			s.addresses = append(s.addresses, b.Address)
		}
	}
	sort.Ints(s.addresses)
	return s, nil
}

// Boards returns all configured boards in declaration order
func (s *BoardSnapshot) Boards() []Board {
	return s.boards
}

// ByAddress returns the boards configured at a bus address
func (s *BoardSnapshot) ByAddress(address int) []Board {
	return s.byAddress[address]
}

// BySlug returns the board owning a topic slug
func (s *BoardSnapshot) BySlug(slug string) (Board, bool) {
	b, ok := s.bySlug[slug]
	return b, ok
}

// ByID returns the board with the given id
func (s *BoardSnapshot) ByID(id string) (Board, bool) {
	b, ok := s.byID[id]
	return b, ok
}

// Addresses returns the enabled bus addresses, deduplicated and ascending.
// This is the polling order.
func (s *BoardSnapshot) Addresses() []int {
	return s.addresses
}
