package embeddings

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/tidwall/btree"
	"gopkg.in/yaml.v3"

	"github.com/jankowtf/wordstack/internal/store"
)

// Source formats understood by the Loader.
const (
	FormatSQLite = "sqlite"
	FormatGloVe  = "glove"
)

// Source describes where a provider's parameters come from.
type Source struct {
	Kind      string `yaml:"kind"`                // static, contextual or character
	Path      string `yaml:"path,omitempty"`      // Relative paths live under the models dir
	Format    string `yaml:"format,omitempty"`    // sqlite (default) or glove
	Dimension int    `yaml:"dimension"`           // Declared width, checked on load
	Direction string `yaml:"direction,omitempty"` // contextual only
	Lowercase bool   `yaml:"lowercase,omitempty"`
	Fallback  string `yaml:"fallback,omitempty"`
	Precision string `yaml:"precision,omitempty"`
	Seed      uint64 `yaml:"seed,omitempty"`
}

// Entry maps an identifier and its aliases to a Source.
type Entry struct {
	ID       string   `yaml:"id"`
	Language string   `yaml:"language"`
	Aliases  []string `yaml:"aliases,omitempty"`
	Source   Source   `yaml:"source"`
}

// Validate checks that the entry describes a constructible provider.
func (e Entry) Validate() error {
	if normalizeID(e.ID) == "" {
		return configErr(e.ID, "empty identifier")
	}
	kind, err := ParseKind(e.Source.Kind)
	if err != nil {
		return &ConfigurationError{Provider: e.ID, Reason: "invalid source", Err: err}
	}
	if e.Source.Dimension <= 0 {
		return configErr(e.ID, "dimension must be positive, got %d", e.Source.Dimension)
	}
	switch e.Source.Format {
	case "", FormatSQLite, FormatGloVe:
	default:
		return configErr(e.ID, "unknown format %q", e.Source.Format)
	}
	if _, err := store.ParsePrecision(e.Source.Precision); err != nil {
		return &ConfigurationError{Provider: e.ID, Reason: "invalid source", Err: err}
	}

	switch kind {
	case KindStatic:
		if e.Source.Path == "" {
			return configErr(e.ID, "static source needs a path")
		}
	case KindContextual:
		if e.Source.Path == "" {
			return configErr(e.ID, "contextual source needs a path")
		}
		if e.Source.Format == FormatGloVe {
			return configErr(e.ID, "contextual models cannot use the %s format", FormatGloVe)
		}
		if _, err := ParseDirection(e.Source.Direction); err != nil {
			return &ConfigurationError{Provider: e.ID, Reason: "invalid source", Err: err}
		}
	case KindCharacter:
		if e.Source.Dimension%2 != 0 {
			return configErr(e.ID, "character dimension must be even, got %d", e.Source.Dimension)
		}
	case KindStacked:
		return configErr(e.ID, "stacked providers are built with LoadStack, not registered")
	}
	return nil
}

func (e Entry) clone() Entry {
	e.Aliases = append([]string(nil), e.Aliases...)
	return e
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Registry maps identifiers and aliases to entries. Lookups are
// case-insensitive and a name is either an identifier or an alias, never both.
type Registry struct {
	mu      sync.RWMutex
	entries *btree.BTreeG[Entry]
	aliases map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: btree.NewBTreeG[Entry](func(a, b Entry) bool { return a.ID < b.ID }),
		aliases: make(map[string]string),
	}
}

// Register adds e. It fails if the identifier or any alias is already taken.
func (r *Registry) Register(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.check(e, nil)
	if err != nil {
		return err
	}
	r.insert(e)
	return nil
}

// check validates e and normalizes its names. pending holds names claimed by
// entries not yet inserted.
func (r *Registry) check(e Entry, pending map[string]bool) (Entry, error) {
	if err := e.Validate(); err != nil {
		return e, err
	}
	e = e.clone()
	e.ID = normalizeID(e.ID)

	taken := func(name string) bool {
		if pending[name] {
			return true
		}
		if _, ok := r.aliases[name]; ok {
			return true
		}
		_, ok := r.entries.Get(Entry{ID: name})
		return ok
	}

	if taken(e.ID) {
		return e, configErr(e.ID, "identifier already registered")
	}
	seen := map[string]bool{e.ID: true}
	aliases := e.Aliases[:0]
	for _, a := range e.Aliases {
		a = normalizeID(a)
		if a == "" || seen[a] {
			continue
		}
		if taken(a) {
			return e, configErr(e.ID, "alias %q already registered", a)
		}
		seen[a] = true
		aliases = append(aliases, a)
	}
	e.Aliases = aliases
	return e, nil
}

func (r *Registry) insert(e Entry) {
	r.entries.Set(e)
	for _, a := range e.Aliases {
		r.aliases[a] = e.ID
	}
}

// Resolve returns the entry for an identifier or alias. It returns an
// *UnknownIdentifierError when nothing matches.
func (r *Registry) Resolve(id string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := normalizeID(id)
	if canonical, ok := r.aliases[key]; ok {
		key = canonical
	}
	e, ok := r.entries.Get(Entry{ID: key})
	if !ok {
		return Entry{}, &UnknownIdentifierError{ID: id}
	}
	return e.clone(), nil
}

// Entries returns all entries ordered by identifier.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, r.entries.Len())
	r.entries.Scan(func(e Entry) bool {
		out = append(out, e.clone())
		return true
	})
	return out
}

// Len returns the number of entries, not counting aliases.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries.Len()
}

// registryFile is the YAML layout read by LoadFile.
type registryFile struct {
	Entries []Entry `yaml:"entries"`
}

// LoadFile registers the entries of a YAML file. Either all entries are
// registered or none.
func (r *Registry) LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading registry file: %w", err)
	}
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return 0, &ConfigurationError{Provider: path, Reason: "parsing registry file", Err: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	pending := make(map[string]bool)
	checked := make([]Entry, 0, len(f.Entries))
	for _, e := range f.Entries {
		e, err := r.check(e, pending)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", path, err)
		}
		pending[e.ID] = true
		for _, a := range e.Aliases {
			pending[a] = true
		}
		checked = append(checked, e)
	}
	for _, e := range checked {
		r.insert(e)
	}
	return len(checked), nil
}

// DefaultRegistry returns a registry populated with the built-in models.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, e := range builtinEntries() {
		if err := r.Register(e); err != nil {
			panic(fmt.Sprintf("invalid built-in registry entry %q: %v", e.ID, err))
		}
	}
	return r
}

func builtinEntries() []Entry {
	static := func(id, lang, path string, dim int, aliases ...string) Entry {
		return Entry{ID: id, Language: lang, Aliases: aliases, Source: Source{
			Kind: "static", Path: path, Format: FormatSQLite, Dimension: dim,
		}}
	}
	contextual := func(id, lang, path, direction string, dim int, aliases ...string) Entry {
		return Entry{ID: id, Language: lang, Aliases: aliases, Source: Source{
			Kind: "contextual", Path: path, Format: FormatSQLite, Dimension: dim, Direction: direction,
		}}
	}

	entries := []Entry{
		static("glove", "en", "glove.db", 100, "en-glove"),
		static("extvec", "en", "extvec.db", 300, "en-extvec"),
		static("crawl", "en", "en-fasttext-crawl-300d-1M.db", 300, "en-crawl"),
		static("news", "en", "en-fasttext-news-300d-1M.db", 300, "en-news", "en"),
		static("twitter", "en", "twitter.db", 100, "en-twitter"),

		contextual("news-forward", "en", "news-forward.db", "forward", 2048, "en-forward"),
		contextual("news-backward", "en", "news-backward.db", "backward", 2048, "en-backward"),
		contextual("news-forward-fast", "en", "news-forward-fast.db", "forward", 1024),
		contextual("news-backward-fast", "en", "news-backward-fast.db", "backward", 1024),
		contextual("mix-forward", "en", "mix-forward.db", "forward", 2048),
		contextual("mix-backward", "en", "mix-backward.db", "backward", 2048),
		contextual("german-forward", "de", "german-forward.db", "forward", 2048, "de-forward"),
		contextual("german-backward", "de", "german-backward.db", "backward", 2048, "de-backward"),
		contextual("polish-forward", "pl", "polish-forward.db", "forward", 2048, "pl-forward"),
		contextual("polish-backward", "pl", "polish-backward.db", "backward", 2048, "pl-backward"),

		{ID: "char", Language: "", Aliases: []string{"characters"}, Source: Source{Kind: "character", Dimension: 50, Seed: 1}},
	}

	for _, lang := range []string{"de", "fr", "es", "it", "nl", "pl", "pt", "sv", "fi", "ru"} {
		entries = append(entries, static(lang+"-wiki", lang, lang+"-wiki-fasttext-300d-1M.db", 300, lang))
	}
	return entries
}
