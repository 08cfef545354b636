// Package notebook persists per-session execution records as minimal
// nbformat v4 documents.
package notebook

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/HyphaGroup/crucible/internal/output"
)

// Cell is one executed code cell.
type Cell struct {
	CellType       string          `json:"cell_type"`
	ExecutionCount int             `json:"execution_count"`
	Metadata       map[string]any  `json:"metadata"`
	Source         string          `json:"source"`
	Outputs        []output.Output `json:"outputs"`
}

// Document is a notebook accumulating one cell per execution.
type Document struct {
	Cells         []*Cell        `json:"cells"`
	Metadata      map[string]any `json:"metadata"`
	NBFormat      int            `json:"nbformat"`
	NBFormatMinor int            `json:"nbformat_minor"`
}

// NewDocument creates an empty notebook document.
func NewDocument() *Document {
	return &Document{
		Cells:         []*Cell{},
		Metadata:      map[string]any{},
		NBFormat:      4,
		NBFormatMinor: 5,
	}
}

// AppendCell adds a code cell with no outputs yet and returns it. The cell
// is filled in after the execution completes.
func (d *Document) AppendCell(code string, executionCount int) *Cell {
	cell := &Cell{
		CellType:       "code",
		ExecutionCount: executionCount,
		Metadata:       map[string]any{},
		Source:         code,
		Outputs:        []output.Output{},
	}
	d.Cells = append(d.Cells, cell)
	return cell
}

// Save writes the document atomically: marshal to a temp file next to the
// target, then rename over it. Readers never observe a partial document.
func (d *Document) Save(path string) error {
	data, err := json.MarshalIndent(d, "", " ")
	if err != nil {
		return fmt.Errorf("failed to marshal notebook: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write notebook: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename notebook: %w", err)
	}
	return nil
}

// UniquePath picks an unused .ipynb path for a sanitized session name,
// appending _1, _2, ... when the base name is taken. Session names that
// sanitize to the same string get distinct artifacts this way.
func UniquePath(dir, sanitizedName string) string {
	base := filepath.Join(dir, sanitizedName+".ipynb")
	if _, err := os.Stat(base); os.IsNotExist(err) {
		return base
	}
	for i := 1; ; i++ {
		path := filepath.Join(dir, fmt.Sprintf("%s_%d.ipynb", sanitizedName, i))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
	}
}
