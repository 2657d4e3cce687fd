// Package text provides the sentence and token structures that embedding
// providers attach vectors to.
package text

import (
	"sort"
	"strings"
	"unicode"
)

// Vector is a fixed-length embedding. Attached vectors must not be modified;
// use Clone to get a private copy.
type Vector []float32

// Clone returns a copy of v.
func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// Equal reports whether v and other have the same length and values.
func (v Vector) Equal(other Vector) bool {
	if len(v) != len(other) {
		return false
	}
	for i := range v {
		if v[i] != other[i] {
			return false
		}
	}
	return true
}

// Token is a single word of a sentence.
type Token struct {
	Text  string
	Index int // Position in the sentence, starting at 0
	Start int // Byte offset in the source text

	embeddings map[string]Vector
}

// SetEmbedding attaches v under name, replacing any previous vector.
func (t *Token) SetEmbedding(name string, v Vector) {
	if t.embeddings == nil {
		t.embeddings = make(map[string]Vector)
	}
	t.embeddings[name] = v
}

// Embedding returns the vector attached under name. The vector may share
// memory with a provider's lookup table; Clone it before modifying it.
func (t *Token) Embedding(name string) (Vector, bool) {
	v, ok := t.embeddings[name]
	return v, ok
}

// EmbeddingNames returns the names of all attached vectors, sorted.
func (t *Token) EmbeddingNames() []string {
	names := make([]string, 0, len(t.embeddings))
	for name := range t.embeddings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ClearEmbeddings removes the named vectors, or all of them when no names
// are given.
func (t *Token) ClearEmbeddings(names ...string) {
	if len(names) == 0 {
		t.embeddings = nil
		return
	}
	for _, name := range names {
		delete(t.embeddings, name)
	}
}

// Sentence is an ordered sequence of tokens.
type Sentence struct {
	Tokens []*Token
}

// NewSentence splits s on whitespace.
func NewSentence(s string) *Sentence {
	sent := &Sentence{}
	start := -1
	for i, r := range s {
		if unicode.IsSpace(r) {
			if start >= 0 {
				sent.add(s[start:i], start)
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		sent.add(s[start:], start)
	}
	return sent
}

// FromWords builds a sentence from already tokenized words. Offsets assume
// the words are joined by single spaces.
func FromWords(words ...string) *Sentence {
	sent := &Sentence{}
	pos := 0
	for _, w := range words {
		sent.add(w, pos)
		pos += len(w) + 1
	}
	return sent
}

func (s *Sentence) add(word string, start int) {
	s.Tokens = append(s.Tokens, &Token{Text: word, Index: len(s.Tokens), Start: start})
}

// Len returns the number of tokens.
func (s *Sentence) Len() int { return len(s.Tokens) }

// String joins the token texts with single spaces.
func (s *Sentence) String() string {
	words := make([]string, len(s.Tokens))
	for i, t := range s.Tokens {
		words[i] = t.Text
	}
	return strings.Join(words, " ")
}

// ClearEmbeddings removes the named vectors from every token.
func (s *Sentence) ClearEmbeddings(names ...string) {
	for _, t := range s.Tokens {
		t.ClearEmbeddings(names...)
	}
}

// SplitSentences splits text into sentence-like segments. A boundary is a
// terminal '.', '!' or '?' followed by a run of whitespace and an upper-case
// letter, or by the end of the text.
func SplitSentences(text string) []string {
	var sentences []string
	start := 0
	runes := []rune(text)

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j < len(runes) && (j == i+1 || !unicode.IsUpper(runes[j])) {
			continue
		}
		if sent := strings.TrimSpace(string(runes[start : i+1])); sent != "" {
			sentences = append(sentences, sent)
		}
		i = j - 1
		start = j
	}

	if start < len(runes) {
		if sent := strings.TrimSpace(string(runes[start:])); sent != "" {
			sentences = append(sentences, sent)
		}
	}
	return sentences
}
