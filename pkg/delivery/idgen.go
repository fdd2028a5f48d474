package delivery

import "fmt"

// fragmentID derives the stable id of the i-th exploded fragment record of
// a logical message. Deriving (rather than minting) keeps reconciliation
// idempotent across reloads.
func fragmentID(baseID string, i int) string {
	return fmt.Sprintf("%s-f%d", baseID, i)
}
