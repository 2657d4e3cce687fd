package seqmodel

// Unknown is the symbol index reserved for runes outside the alphabet.
const Unknown = 0

// Alphabet maps runes to symbol indices. Index 0 is reserved for Unknown.
type Alphabet struct {
	index   map[rune]int
	symbols []rune
}

// NewAlphabet builds an alphabet from symbols. Duplicates are ignored.
func NewAlphabet(symbols []rune) *Alphabet {
	a := &Alphabet{index: make(map[rune]int, len(symbols))}
	for _, r := range symbols {
		if _, ok := a.index[r]; ok {
			continue
		}
		a.symbols = append(a.symbols, r)
		a.index[r] = len(a.symbols)
	}
	return a
}

// DefaultAlphabet covers printable ASCII, newline and common accented
// Latin letters.
func DefaultAlphabet() *Alphabet {
	var symbols []rune
	symbols = append(symbols, '\n')
	for r := rune(32); r < 127; r++ {
		symbols = append(symbols, r)
	}
	symbols = append(symbols, []rune("äöüÄÖÜßàâçéèêëîïôùûÿñáíóúąćęłńśźżčšž")...)
	return NewAlphabet(symbols)
}

// Size is the number of symbol indices including the Unknown slot.
func (a *Alphabet) Size() int { return len(a.symbols) + 1 }

// Index returns the symbol index of r, or Unknown.
func (a *Alphabet) Index(r rune) int {
	if i, ok := a.index[r]; ok {
		return i
	}
	return Unknown
}

// Encode maps every rune of s to its index.
func (a *Alphabet) Encode(s string) []int {
	out := make([]int, 0, len(s))
	for _, r := range s {
		out = append(out, a.Index(r))
	}
	return out
}

// Symbols returns the alphabet as strings in index order, excluding Unknown.
func (a *Alphabet) Symbols() []string {
	out := make([]string, len(a.symbols))
	for i, r := range a.symbols {
		out[i] = string(r)
	}
	return out
}

// AlphabetFromSymbols is the inverse of Symbols.
func AlphabetFromSymbols(symbols []string) *Alphabet {
	runes := make([]rune, 0, len(symbols))
	for _, s := range symbols {
		for _, r := range s {
			runes = append(runes, r)
			break
		}
	}
	return NewAlphabet(runes)
}
