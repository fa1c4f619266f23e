package cli

import (
	"strings"

	"github.com/lucasnoah/ciresolve/internal/cierr"
)

// FormatError renders err for the terminal, followed by any hints attached
// to it.
func FormatError(err error) string {
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(err.Error())
	for _, h := range cierr.Hints(err) {
		b.WriteString("\nhint: ")
		b.WriteString(h)
	}
	return b.String()
}
