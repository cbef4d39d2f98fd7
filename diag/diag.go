// Package diag collects numerical-quality warnings which are
// attached to results.
package diag

import "fmt"

// Warning is a numerical-quality problem which did not stop the
// computation.
type Warning struct {
	// Source names the component reporting the warning.
	Source  string `json:"source"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	return w.Source + ": " + w.Message
}

// Warnings is a list of warnings.
type Warnings []Warning

// Add appends a formatted warning.
func (ws *Warnings) Add(source, format string, args ...interface{}) {
	*ws = append(*ws, Warning{Source: source, Message: fmt.Sprintf(format, args...)})
}

// Merge appends all the warnings from other.
func (ws *Warnings) Merge(other Warnings) {
	*ws = append(*ws, other...)
}

// Count returns the number of warnings from the source.
func (ws Warnings) Count(source string) (n int) {
	for _, w := range ws {
		if w.Source == source {
			n++
		}
	}
	return
}
