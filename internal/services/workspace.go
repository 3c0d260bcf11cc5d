package services

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"

	"scanhub/internal/models"
	scanerrors "scanhub/pkg/errors"
	output "scanhub/pkg/io_utils"
)

// FileInput is one uploaded file: inline Content, or a Path below the
// configured uploads root.
type FileInput struct {
	Name    string  `json:"name" validate:"required"`
	Size    int64   `json:"size" validate:"gte=0"`
	Content *string `json:"content,omitempty"`
	Path    string  `json:"path,omitempty"`
}

type workspace struct {
	Files       []models.FileDescriptor
	LinesOfCode int
}

// cleanFileName normalizes an upload name to a relative slash path.
func cleanFileName(name string) (string, error) {
	cleaned := filepath.ToSlash(filepath.Clean("/" + strings.TrimSpace(name)))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("%w: invalid file name %q", scanerrors.ErrInvalidRequest, name)
	}
	return cleaned, nil
}

// materialize writes files into dir. Every target is joined with securejoin
// so that no name can escape the workspace.
func materialize(dir, uploadsRoot string, files []FileInput) (workspace, error) {
	var ws workspace

	for _, f := range files {
		name, err := cleanFileName(f.Name)
		if err != nil {
			return ws, err
		}

		target, err := securejoin.SecureJoin(dir, name)
		if err != nil {
			return ws, fmt.Errorf("failed to resolve %s: %w", name, err)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return ws, fmt.Errorf("failed to create directory for %s: %w", name, err)
		}

		size, err := writeInput(target, uploadsRoot, f)
		if err != nil {
			return ws, err
		}

		lines, err := output.CountFileLines(target)
		if err != nil {
			return ws, fmt.Errorf("failed to count lines of %s: %w", name, err)
		}

		ws.Files = append(ws.Files, models.FileDescriptor{Name: name, Size: size})
		ws.LinesOfCode += lines
	}
	return ws, nil
}

func writeInput(target, uploadsRoot string, f FileInput) (int64, error) {
	if f.Content != nil {
		if err := os.WriteFile(target, []byte(*f.Content), 0o644); err != nil {
			return 0, fmt.Errorf("failed to write %s: %w", f.Name, err)
		}
		return int64(len(*f.Content)), nil
	}

	if uploadsRoot == "" {
		return 0, fmt.Errorf("%w: file %s has no content and path uploads are disabled", scanerrors.ErrInvalidRequest, f.Name)
	}

	source, err := securejoin.SecureJoin(uploadsRoot, f.Path)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid path for %s: %v", scanerrors.ErrInvalidRequest, f.Name, err)
	}

	in, err := os.Open(source)
	if err != nil {
		return 0, fmt.Errorf("%w: cannot read %s: %v", scanerrors.ErrInvalidRequest, f.Path, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%w: %s is not a regular file", scanerrors.ErrInvalidRequest, f.Path)
	}

	out, err := os.Create(target)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", f.Name, err)
	}
	defer out.Close()

	n, err := io.Copy(out, in)
	if err != nil {
		return n, fmt.Errorf("failed to copy %s: %w", f.Path, err)
	}
	return n, nil
}
