package testutil

import "sync"

// DefaultStream is the token scenarios journal under when they name none.
const DefaultStream = "test-stream-default"

// Streams hands out a scripted sequence of stream tokens and keeps
// repeating the last one once the script runs out. It implements
// store.StreamTokenGenerator.
type Streams struct {
	mu     sync.Mutex
	tokens []string
	issued int
}

// NewStreams scripts the given tokens. Empty tokens are skipped; with none
// left, every call returns DefaultStream.
func NewStreams(tokens ...string) *Streams {
	s := &Streams{}
	for _, tok := range tokens {
		if tok != "" {
			s.tokens = append(s.tokens, tok)
		}
	}
	if len(s.tokens) == 0 {
		s.tokens = []string{DefaultStream}
	}
	return s
}

// Generate returns the next scripted token.
func (s *Streams) Generate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := min(s.issued, len(s.tokens)-1)
	s.issued++
	return s.tokens[i]
}

// Issued reports how many tokens Generate has handed out.
func (s *Streams) Issued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issued
}
