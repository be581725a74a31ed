// Package search selects the checkpoints handed to the prover.
package search

import (
	"chatproof/internal/checkpoint"
)

// Filter returns, in closing order, every checkpoint holding at least one
// message whose text contains s. Matching is an exact, case-sensitive
// substring test with no trimming or normalization. The result is empty,
// never nil, when nothing matches.
func Filter(store *checkpoint.Store, s string) []*checkpoint.Checkpoint {
	out := make([]*checkpoint.Checkpoint, 0)
	for _, cp := range store.All() {
		if cp.Contains(s) {
			out = append(out, cp)
		}
	}
	return out
}
