// Package seqmodel defines the character sequence model contract consumed by
// contextual and character embeddings, and a small recurrent reference model.
package seqmodel

import "context"

// Model maps sequences of symbol indices to one hidden state per position.
type Model interface {
	// HiddenSize is the width of every returned state.
	HiddenSize() int

	// MinContext is the minimum sequence length the model accepts.
	MinContext() int

	// Encode maps each rune of s to a symbol index.
	Encode(s string) []int

	// States runs the model over every sequence of the batch. With reverse
	// set, each sequence is read end-to-start; states are still returned in
	// original position order, so states[b][i] has seen positions i..n-1.
	States(ctx context.Context, batch [][]int, reverse bool) ([][][]float32, error)
}
