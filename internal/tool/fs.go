package tool

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
)

// defaultSearchLimit bounds how many matches search_files reports.
const defaultSearchLimit = 50

// ReadFile returns whole-file reads inside the sandbox root.
type ReadFile struct {
	Root string
}

func (t *ReadFile) Definition() mcp.Tool {
	return mcp.NewTool("read_file",
		mcp.WithDescription("Read the UTF-8 contents of a file, relative to the project root"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("File path relative to the project root"),
		),
	)
}

func (t *ReadFile) Execute(_ context.Context, args map[string]any) string {
	path, err := resolve(t.Root, stringArg(args, "path"))
	if err != nil {
		return "error: " + err.Error()
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path is sandbox-resolved
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("error: file %q not found", stringArg(args, "path"))
		}
		return fmt.Sprintf("error: read %q: %v", stringArg(args, "path"), err)
	}
	if !utf8.Valid(data) {
		return fmt.Sprintf("error: file %q is not valid UTF-8", stringArg(args, "path"))
	}
	return string(data)
}

// WriteFile creates or overwrites a file inside the sandbox root.
type WriteFile struct {
	Root string
}

func (t *WriteFile) Definition() mcp.Tool {
	return mcp.NewTool("write_file",
		mcp.WithDescription("Create or overwrite a file with the given content, relative to the project root"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("File path relative to the project root"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("Full file content to write"),
		),
	)
}

func (t *WriteFile) Execute(_ context.Context, args map[string]any) string {
	path, err := resolve(t.Root, stringArg(args, "path"))
	if err != nil {
		return "error: " + err.Error()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Sprintf("error: create parent directory: %v", err)
	}
	content := stringArg(args, "content")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil { //nolint:gosec // G306: project files
		return fmt.Sprintf("error: write %q: %v", stringArg(args, "path"), err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), stringArg(args, "path"))
}

// SearchFiles matches a substring across files under the sandbox root with a
// bounded result count.
type SearchFiles struct {
	Root    string
	MaxHits int
}

func (t *SearchFiles) Definition() mcp.Tool {
	return mcp.NewTool("search_files",
		mcp.WithDescription("Search project files for a substring; returns matching lines with file and line number"),
		mcp.WithString("pattern",
			mcp.Required(),
			mcp.Description("Substring to search for"),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum number of matches to return"),
		),
	)
}

func (t *SearchFiles) Execute(_ context.Context, args map[string]any) string {
	pattern := stringArg(args, "pattern")
	if pattern == "" {
		return "error: pattern is required"
	}

	limit := intArg(args, "max_results", t.MaxHits)
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	var hits []string
	err := filepath.WalkDir(t.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // unreadable entries are skipped, not fatal
		}
		if d.IsDir() {
			// Skip hidden directories, most importantly .git.
			if name := d.Name(); name != "." && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		data, err := os.ReadFile(path) //nolint:gosec // G304: path is inside sandbox root
		if err != nil || !utf8.Valid(data) {
			return nil
		}

		rel, _ := filepath.Rel(t.Root, path)
		for i, line := range strings.Split(string(data), "\n") {
			if strings.Contains(line, pattern) {
				hits = append(hits, fmt.Sprintf("%s:%d: %s", rel, i+1, strings.TrimSpace(line)))
				if len(hits) >= limit {
					return filepath.SkipAll
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Sprintf("error: search: %v", err)
	}

	if len(hits) == 0 {
		return fmt.Sprintf("no matches for %q", pattern)
	}
	return strings.Join(hits, "\n")
}
