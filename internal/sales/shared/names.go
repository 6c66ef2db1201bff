package shared

import (
	"strings"

	"golang.org/x/text/cases"
)

// FoldName normalises a display name for comparisons: whitespace runs collapse to one space and
// case is folded. A Caser is stateful, so a fresh one is used per call.
func FoldName(name string) string {
	return cases.Fold().String(strings.Join(strings.Fields(name), " "))
}
