package filesystem

import (
	"context"
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
)

// NotifyFunc receives the unified diff of every successful write. It must not
// block on user input.
type NotifyFunc func(ctx context.Context, path, diff string)

// computeDiff returns a unified diff between oldContent and newContent labeled
// with the given path. Returns an empty string when the contents are equal.
func computeDiff(path, oldContent, newContent string) string {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(oldContent),
		B:        difflib.SplitLines(newContent),
		FromFile: path,
		ToFile:   path,
		Context:  3,
	}

	result, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return fmt.Sprintf("(diff error: %v)", err)
	}

	return result
}
