package registry

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ShayCichocki/conductor/pkg/models"
)

// KeywordEntry is one declared keyword in the flat keyword index.
type KeywordEntry struct {
	Keyword      string
	KeywordLower string
	// DeclarationOrder is the keyword's position within its agent's keyword list.
	DeclarationOrder int
	AgentName        string
}

// Snapshot is an immutable view of the loaded agents.
// Returned definitions are shared and must not be modified.
type Snapshot struct {
	dir      string
	loadedAt time.Time
	agents   []*models.AgentDefinition
	byName   map[string]*models.AgentDefinition
	intents  map[string][]string
	keywords []KeywordEntry
}

func newSnapshot(dir string, agents []*models.AgentDefinition) *Snapshot {
	s := &Snapshot{
		dir:      dir,
		loadedAt: time.Now(),
		agents:   agents,
		byName:   make(map[string]*models.AgentDefinition, len(agents)),
		intents:  make(map[string][]string),
	}
	for _, a := range agents {
		s.byName[a.Name] = a
		for _, intent := range a.Triggers.Intents {
			key := strings.ToLower(intent)
			s.intents[key] = append(s.intents[key], a.Name)
		}
		for i, kw := range a.Triggers.Keywords {
			s.keywords = append(s.keywords, KeywordEntry{
				Keyword:          kw,
				KeywordLower:     strings.ToLower(kw),
				DeclarationOrder: i,
				AgentName:        a.Name,
			})
		}
	}
	return s
}

func emptySnapshot() *Snapshot {
	return newSnapshot("", nil)
}

// Dir returns the directory the snapshot was loaded from.
func (s *Snapshot) Dir() string { return s.dir }

// LoadedAt returns when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Len returns the number of agents.
func (s *Snapshot) Len() int { return len(s.agents) }

// Agents returns the agents in filename order.
func (s *Snapshot) Agents() []*models.AgentDefinition {
	out := make([]*models.AgentDefinition, len(s.agents))
	copy(out, s.agents)
	return out
}

// Get returns the agent with the given name, or nil.
func (s *Snapshot) Get(name string) *models.AgentDefinition {
	return s.byName[name]
}

// Has reports whether an agent with the given name exists.
func (s *Snapshot) Has(name string) bool {
	_, ok := s.byName[name]
	return ok
}

// Keywords returns a copy of the flat keyword index.
func (s *Snapshot) Keywords() []KeywordEntry {
	out := make([]KeywordEntry, len(s.keywords))
	copy(out, s.keywords)
	return out
}

// MatchByIntent returns the first agent, in file order, declaring the intent.
func (s *Snapshot) MatchByIntent(intent string) *models.AgentDefinition {
	names := s.intents[strings.ToLower(strings.TrimSpace(intent))]
	if len(names) == 0 {
		return nil
	}
	return s.byName[names[0]]
}

// MatchByKeyword resolves text to an agent through the keyword index.
func (s *Snapshot) MatchByKeyword(text string) *models.AgentDefinition {
	e, ok := s.MatchKeyword(text)
	if !ok {
		return nil
	}
	return s.byName[e.AgentName]
}

// MatchKeyword returns the keyword index entry that text resolves to.
//
// An exact (case-insensitive) match wins over any substring match, choosing
// the lowest declaration order and then index order. Otherwise the longest
// keyword contained in text wins, then the lowest declaration order, then
// the agent name.
func (s *Snapshot) MatchKeyword(text string) (KeywordEntry, bool) {
	input := strings.ToLower(strings.TrimSpace(text))
	if input == "" {
		return KeywordEntry{}, false
	}

	var exact *KeywordEntry
	for i := range s.keywords {
		e := &s.keywords[i]
		if e.KeywordLower != input {
			continue
		}
		if exact == nil || e.DeclarationOrder < exact.DeclarationOrder {
			exact = e
		}
	}
	if exact != nil {
		return *exact, true
	}

	var best *KeywordEntry
	bestLen := 0
	for i := range s.keywords {
		e := &s.keywords[i]
		if e.KeywordLower == "" || !strings.Contains(input, e.KeywordLower) {
			continue
		}
		n := utf8.RuneCountInString(e.KeywordLower)
		switch {
		case best == nil,
			n > bestLen,
			n == bestLen && e.DeclarationOrder < best.DeclarationOrder,
			n == bestLen && e.DeclarationOrder == best.DeclarationOrder && e.AgentName < best.AgentName:
			best, bestLen = e, n
		}
	}
	if best == nil {
		return KeywordEntry{}, false
	}
	return *best, true
}
