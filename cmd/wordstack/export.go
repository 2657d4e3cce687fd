package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/jankowtf/wordstack/internal/tui"
	"github.com/jankowtf/wordstack/pkg/text"
)

// exporter writes the vectors attached under name.
type exporter func(w io.Writer, name string, sentences []*text.Sentence) error

func exporterFor(format string) (exporter, error) {
	switch format {
	case "json":
		return exportJSON, nil
	case "csv":
		return exportCSV, nil
	case "markdown":
		return exportMarkdown, nil
	}
	return nil, fmt.Errorf("unsupported format %q: use json, csv, or markdown", format)
}

type exportSentence struct {
	Text     string        `json:"text"`
	Embedded bool          `json:"embedded"`
	Tokens   []exportToken `json:"tokens"`
}

type exportToken struct {
	Index  int       `json:"index"`
	Text   string    `json:"text"`
	Start  int       `json:"start"`
	Vector []float32 `json:"vector,omitempty"`
}

func toExportSentence(name string, s *text.Sentence) exportSentence {
	out := exportSentence{Text: s.String(), Embedded: s.Len() > 0, Tokens: make([]exportToken, 0, s.Len())}
	for _, tok := range s.Tokens {
		v, ok := tok.Embedding(name)
		if !ok {
			out.Embedded = false
		}
		out.Tokens = append(out.Tokens, exportToken{Index: tok.Index, Text: tok.Text, Start: tok.Start, Vector: v})
	}
	return out
}

func exportJSON(w io.Writer, name string, sentences []*text.Sentence) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	out := make([]exportSentence, 0, len(sentences))
	for _, s := range sentences {
		out = append(out, toExportSentence(name, s))
	}
	return enc.Encode(out)
}

// exportCSV writes one row per embedded token: sentence, token, text and one
// column per vector value.
func exportCSV(w io.Writer, name string, sentences []*text.Sentence) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	dim := 0
	for _, s := range sentences {
		for _, tok := range s.Tokens {
			if v, ok := tok.Embedding(name); ok {
				dim = len(v)
				break
			}
		}
		if dim > 0 {
			break
		}
	}

	header := []string{"sentence", "token", "text"}
	for i := range dim {
		header = append(header, "d"+strconv.Itoa(i))
	}
	cw.Write(header)

	for i, s := range sentences {
		for _, tok := range s.Tokens {
			v, ok := tok.Embedding(name)
			if !ok {
				continue
			}
			row := []string{strconv.Itoa(i), strconv.Itoa(tok.Index), tok.Text}
			for _, f := range v {
				row = append(row, strconv.FormatFloat(float64(f), 'g', -1, 32))
			}
			cw.Write(row)
		}
	}
	return cw.Error()
}

func exportMarkdown(w io.Writer, name string, sentences []*text.Sentence) error {
	for i, s := range sentences {
		fmt.Fprintf(w, "## %d. %s\n\n", i+1, s.String())
		fmt.Fprintf(w, "| # | token | values | norm | head |\n")
		fmt.Fprintf(w, "|---|-------|--------|------|------|\n")
		for _, tok := range s.Tokens {
			v, ok := tok.Embedding(name)
			if !ok {
				fmt.Fprintf(w, "| %d | %s | - | - | not embedded |\n", tok.Index, tok.Text)
				continue
			}
			head := v
			if len(head) > 4 {
				head = head[:4]
			}
			fmt.Fprintf(w, "| %d | %s | %d | %.4f | %s |\n", tok.Index, tok.Text, len(v), tui.Norm(v), tui.FormatVector(head))
		}
		if _, err := fmt.Fprint(w, "\n---\n\n"); err != nil {
			return err
		}
	}
	return nil
}
