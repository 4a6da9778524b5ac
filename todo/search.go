package todo

import (
	"strings"

	"golang.org/x/text/cases"
)

// matcher returns a case-insensitive substring test for term using Unicode
// case folding.
func matcher(term string) func(string) bool {
	if term == "" {
		return func(string) bool { return true }
	}

	fold := cases.Fold()
	needle := fold.String(term)
	return func(text string) bool {
		return strings.Contains(fold.String(text), needle)
	}
}
