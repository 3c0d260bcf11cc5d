// Package adapters runs one analyzer over a source tree and returns its
// findings in the tool's own shape.
package adapters

import (
	"context"

	"scanhub/pkg/parsers"
	"scanhub/pkg/tools"
)

// SourceTree is the materialized input of a scan. Files are relative to Root.
type SourceTree struct {
	Root  string
	Files []string
}

// Adapter executes one canonical tool. A run with no findings succeeds with an
// empty sequence; failures are *errors.ToolError values.
type Adapter interface {
	Tool() tools.ToolName
	Run(ctx context.Context, tree SourceTree) (parsers.RawFindings, error)
}
