// Package admission keeps one session from processing the same question twice
// at the same time. It is not a result cache: once a question finishes, the
// same text is admitted again.
package admission

import (
	"encoding/hex"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// Hash returns the key a question is admitted under.
func Hash(question string) string {
	sum := blake2b.Sum256([]byte(strings.TrimSpace(question)))
	return hex.EncodeToString(sum[:])
}

// Set holds the hashes of questions currently in flight for one session.
type Set struct {
	mu       sync.Mutex
	inFlight map[string]uint64
	nextTok  uint64
}

func NewSet() *Set {
	return &Set{inFlight: make(map[string]uint64)}
}

// Acquire admits question unless an identical one is already in flight. The
// returned release is safe to call more than once and never removes a slot
// that was re-acquired after a Reset.
func (s *Set) Acquire(question string) (release func(), ok bool) {
	hash := Hash(question)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.inFlight[hash]; busy {
		return nil, false
	}
	s.nextTok++
	token := s.nextTok
	s.inFlight[hash] = token

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.inFlight[hash] == token {
				delete(s.inFlight, hash)
			}
		})
	}, true
}

// Contains reports whether question is in flight.
func (s *Set) Contains(question string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inFlight[Hash(question)]
	return ok
}

func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight)
}

// Reset forgets every in-flight question.
func (s *Set) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = make(map[string]uint64)
}
