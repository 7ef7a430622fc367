// Package preferences keeps long-lived per-customer taste notes
// gathered from conversation, so later threads can personalize
// recommendations.
package preferences

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tunedesk/tunedesk/internal/observability"
)

// DefaultMemory is what Load reports when nothing is stored yet. The
// literal feeds straight into the sub-agent prompts.
const DefaultMemory = "None"

// maxPreferenceSentences caps how many matching sentences one save
// keeps.
const maxPreferenceSentences = 3

// Phrases that mark a sentence as a taste statement.
var preferenceKeywords = []string{
	"i like",
	"i prefer",
	"i love",
	"i enjoy",
	"my favorite",
	"i'm interested in",
	"i'm into",
	"i listen to",
}

// Store is an in-memory preference store keyed by customer id.
// Last write wins.
type Store struct {
	mu     sync.RWMutex
	prefs  map[string]string
	logger zerolog.Logger
}

// Config holds store configuration
type Config struct {
	Logger zerolog.Logger
}

// New creates a new Store
func New(cfg Config) *Store {
	observability.EnsureRegistered()
	return &Store{
		prefs:  make(map[string]string),
		logger: cfg.Logger,
	}
}

// Load returns the stored preferences for a customer, or
// DefaultMemory when the id is empty or nothing is stored.
func (s *Store) Load(customerID string) string {
	observability.RecordPreferenceLoad()

	if customerID == "" {
		return DefaultMemory
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if prefs, ok := s.prefs[customerID]; ok && prefs != "" {
		return prefs
	}
	return DefaultMemory
}

// Save stores preferences for a customer, replacing any previous
// value. Returns false and does nothing when the id or text is empty.
func (s *Store) Save(customerID, text string) bool {
	if customerID == "" || text == "" {
		return false
	}

	s.mu.Lock()
	s.prefs[customerID] = text
	total := len(s.prefs)
	s.mu.Unlock()

	observability.RecordPreferenceSave(total)
	s.logger.Debug().Str("customer_id", customerID).Msg("Preferences saved")
	return true
}

// Extract pulls taste statements out of a user message. Sentences are
// split on '.', matched against the keyword set case-insensitively,
// lowercased, and the first matches are joined with "; ". Empty result
// means the message carried no preference.
func Extract(message string) string {
	var matched []string

	for _, sentence := range strings.Split(message, ".") {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		lower := strings.ToLower(sentence)
		for _, keyword := range preferenceKeywords {
			if strings.Contains(lower, keyword) {
				matched = append(matched, lower)
				break
			}
		}
		if len(matched) == maxPreferenceSentences {
			break
		}
	}

	return strings.Join(matched, "; ")
}
