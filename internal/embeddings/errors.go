package embeddings

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a provider that cannot be constructed: an
// unknown identifier, a malformed source or invalid options. It is permanent.
type ConfigurationError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *ConfigurationError) Error() string {
	msg := "configuration error"
	if e.Provider != "" {
		msg += " in " + e.Provider
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func configErr(provider, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Provider: provider, Reason: fmt.Sprintf(format, args...)}
}

// UnknownIdentifierError reports a registry lookup that matched no
// identifier or alias. errors.As finds a *ConfigurationError in its chain.
type UnknownIdentifierError struct {
	ID string
}

func (e *UnknownIdentifierError) Error() string {
	return fmt.Sprintf("unknown embedding identifier %q", e.ID)
}

func (e *UnknownIdentifierError) Unwrap() error {
	return &ConfigurationError{Provider: e.ID, Reason: "identifier not registered"}
}

// EmbeddingError reports a sentence that could not be embedded. Other
// sentences of the same batch are unaffected.
type EmbeddingError struct {
	Provider string
	Sentence int // Index in the batch
	Reason   string
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("%s: sentence %d: %s", e.Provider, e.Sentence, e.Reason)
}

// DimensionMismatchError reports a vector whose length differs from the
// declared dimension. It signals a broken provider and is never recovered.
type DimensionMismatchError struct {
	Provider    string
	Constituent string
	Want        int
	Got         int
}

func (e *DimensionMismatchError) Error() string {
	if e.Constituent != "" {
		return fmt.Sprintf("%s: constituent %s produced %d values, want %d", e.Provider, e.Constituent, e.Got, e.Want)
	}
	return fmt.Sprintf("%s: produced %d values, want %d", e.Provider, e.Got, e.Want)
}

// IsEmbeddingError reports whether err consists only of EmbeddingErrors,
// possibly joined. Callers use it to tell per-sentence failures from fatal
// ones.
func IsEmbeddingError(err error) bool {
	if err == nil {
		return false
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs := joined.Unwrap()
		if len(errs) == 0 {
			return false
		}
		for _, e := range errs {
			if !IsEmbeddingError(e) {
				return false
			}
		}
		return true
	}
	var ee *EmbeddingError
	return errors.As(err, &ee)
}

// SentenceErrors extracts every EmbeddingError from err.
func SentenceErrors(err error) []*EmbeddingError {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []*EmbeddingError
		for _, e := range joined.Unwrap() {
			out = append(out, SentenceErrors(e)...)
		}
		return out
	}
	var ee *EmbeddingError
	if errors.As(err, &ee) {
		return []*EmbeddingError{ee}
	}
	return nil
}
