package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/ledongthuc/pdf"

	"github.com/jankowtf/wordstack/internal/embeddings"
	"github.com/jankowtf/wordstack/pkg/text"
)

func runEmbed(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("embed")
	stack := fs.String("stack", "", "Comma-separated model identifiers (overrides config)")
	format := fs.String("format", "json", "Output format: json, csv, markdown")
	output := fs.String("output", "", "Output file (default: stdout)")
	file := fs.String("file", "", "Read text from a file")
	fromClipboard := fs.Bool("clipboard", false, "Read text from the clipboard")
	lines := fs.Bool("lines", false, "Treat every input line as one sentence")
	if err := fs.Parse(args); err != nil {
		return err
	}

	exporter, err := exporterFor(*format)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := cfg.Logger(os.Stderr)

	input, err := readInput(fs.Args(), *file, *fromClipboard, os.Stdin)
	if err != nil {
		return err
	}

	ids := cfg.Embeddings.Stack
	if *stack != "" {
		ids = splitIDs(*stack)
	}

	loader, err := newLoader(cfg, logger)
	if err != nil {
		return err
	}
	p, err := loadProvider(ctx, loader, ids)
	if err != nil {
		return err
	}

	stop := serveMetrics(cfg.Metrics.Addr, logger)
	defer stop()

	sentences, err := embedText(ctx, p, input, *lines, logger)
	if err != nil {
		return err
	}

	w := stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if err := exporter(w, p.Name(), sentences); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	if *output != "" {
		logger.Info("embeddings written", "file", *output, "sentences", len(sentences))
	}
	return nil
}

// embedText splits input into sentences and embeds them with p. Sentences
// the provider could not embed are logged and kept without vectors.
func embedText(ctx context.Context, p embeddings.Provider, input string, lines bool, logger *slog.Logger) ([]*text.Sentence, error) {
	var segments []string
	if lines {
		for _, line := range strings.Split(input, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				segments = append(segments, line)
			}
		}
	} else {
		segments = text.SplitSentences(input)
	}
	if len(segments) == 0 {
		return nil, errors.New("no text to embed")
	}

	sentences := make([]*text.Sentence, len(segments))
	for i, s := range segments {
		sentences[i] = text.NewSentence(s)
	}

	err := p.Embed(ctx, sentences)
	if err != nil && !embeddings.IsEmbeddingError(err) {
		return nil, err
	}
	for _, se := range embeddings.SentenceErrors(err) {
		logger.Warn("sentence not embedded", "provider", se.Provider, "sentence", se.Sentence, "reason", se.Reason)
	}
	logger.Debug("embedded text", "provider", p.Name(), "sentences", len(sentences), "failed", len(embeddings.SentenceErrors(err)))
	return sentences, nil
}

// readInput picks the text source: arguments, then a file, then the
// clipboard, then stdin.
func readInput(args []string, file string, fromClipboard bool, stdin io.Reader) (string, error) {
	switch {
	case len(args) > 0:
		return strings.Join(args, " "), nil
	case file != "" && strings.EqualFold(filepath.Ext(file), ".pdf"):
		return extractPDFText(file)
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading input: %w", err)
		}
		return string(data), nil
	case fromClipboard:
		s, err := clipboard.ReadAll()
		if err != nil {
			return "", fmt.Errorf("reading clipboard: %w", err)
		}
		return s, nil
	}

	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(data), nil
}

// extractPDFText extracts plain text from a PDF file.
func extractPDFText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	numPages := r.NumPage()
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue // Skip pages that fail to parse.
		}
		sb.WriteString(content)
		if i < numPages {
			sb.WriteString("\n\n")
		}
	}
	return strings.TrimSpace(sb.String()), nil
}
