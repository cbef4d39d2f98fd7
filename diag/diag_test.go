package diag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWarnings(tst *testing.T) {
	var ws Warnings
	ws.Add("smodel", "eigensystem error %.1e", 1e-3)
	var other Warnings
	other.Add("ml", "branch %d did not converge", 3)
	other.Add("ml", "again")
	ws.Merge(other)
	assert.Len(tst, ws, 3)
	assert.Equal(tst, "smodel: eigensystem error 1.0e-03", ws[0].String())
	assert.Equal(tst, 2, ws.Count("ml"))
	assert.Equal(tst, 0, ws.Count("puzzle"))
}
