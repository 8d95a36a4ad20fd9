package conversation

import (
	"sync"
	"time"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Sizer measures how much of the context budget a turn consumes.
type Sizer interface {
	Size(t Turn) int
}

// CharSizer counts characters of content.
type CharSizer struct{}

func (CharSizer) Size(t Turn) int { return utf8.RuneCountInString(t.Content) }

// perMessageTokens approximates the role and separator overhead a chat API
// adds to every message.
const perMessageTokens = 4

// TokenSizer counts cl100k_base tokens. The rank file is fetched on first
// use within FetchTimeout and cached in CacheDir; if that fails the sizer
// falls back to chars/4.
type TokenSizer struct {
	FetchTimeout time.Duration
	CacheDir     string

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTokenSizer creates a TokenSizer. The encoding is loaded lazily.
func NewTokenSizer(fetchTimeout time.Duration, cacheDir string) *TokenSizer {
	return &TokenSizer{FetchTimeout: fetchTimeout, CacheDir: cacheDir}
}

func (s *TokenSizer) Size(t Turn) int {
	s.once.Do(func() {
		tiktoken.SetBpeLoader(newBPELoader(s.FetchTimeout, s.CacheDir))
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			s.enc = enc
		}
	})
	if s.enc == nil {
		return utf8.RuneCountInString(t.Content)/4 + perMessageTokens
	}
	return len(s.enc.Encode(t.Content, nil, nil)) + perMessageTokens
}
