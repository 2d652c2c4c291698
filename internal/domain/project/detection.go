// Package project provides stack detection for a project root: which
// language it is written in, which framework it appears to use, and which
// command runs its test suite.
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// maxManifestRead is the maximum bytes read from a manifest for framework detection.
const maxManifestRead = 64 * 1024

// Stack is the result of scanning a project root.
type Stack struct {
	Language    string `json:"language"`
	Framework   string `json:"framework,omitempty"`
	TestCommand string `json:"test_command"`
}

// manifestMap maps top-level manifest filenames to languages.
var manifestMap = map[string]string{
	"go.mod":           "go",
	"package.json":     "javascript",
	"tsconfig.json":    "typescript",
	"pyproject.toml":   "python",
	"setup.py":         "python",
	"requirements.txt": "python",
	"Cargo.toml":       "rust",
	"pom.xml":          "java",
	"build.gradle":     "java",
	"Gemfile":          "ruby",
}

// testCommands maps languages to their default test runner invocation.
var testCommands = map[string]string{
	"go":         "go test ./...",
	"javascript": "npm test",
	"typescript": "npm test",
	"python":     "pytest",
	"rust":       "cargo test",
	"java":       "mvn test",
	"ruby":       "bundle exec rake test",
}

// frameworkRule matches a substring inside a manifest to a framework name.
type frameworkRule struct {
	manifest  string
	substring string
	framework string
}

var frameworkRules = map[string][]frameworkRule{
	"go": {
		{"go.mod", "github.com/go-chi/chi", "chi"},
		{"go.mod", "github.com/gin-gonic/gin", "gin"},
		{"go.mod", "github.com/labstack/echo", "echo"},
	},
	"javascript": {
		{"package.json", `"react"`, "react"},
		{"package.json", `"express"`, "express"},
		{"package.json", `"vue"`, "vue"},
	},
	"typescript": {
		{"package.json", `"react"`, "react"},
		{"package.json", `"next"`, "nextjs"},
	},
	"python": {
		{"pyproject.toml", "django", "django"},
		{"pyproject.toml", "flask", "flask"},
		{"pyproject.toml", "fastapi", "fastapi"},
		{"requirements.txt", "django", "django"},
		{"requirements.txt", "flask", "flask"},
		{"requirements.txt", "fastapi", "fastapi"},
	},
}

// Detect scans the top-level entries of a project root and reports the
// detected stack. Only one language is reported; when several manifests are
// present the one with the most specific signal wins (tsconfig promotes
// javascript to typescript). An unrecognized project yields ok=false rather
// than an error so callers can proceed without detection.
func Detect(root string) (Stack, bool, error) {
	info, err := os.Stat(root)
	if err != nil {
		return Stack{}, false, fmt.Errorf("detect stack: %w", err)
	}
	if !info.IsDir() {
		return Stack{}, false, fmt.Errorf("detect stack: %s is not a directory", root)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return Stack{}, false, fmt.Errorf("detect stack: read dir: %w", err)
	}

	found := make(map[string]bool)      // language → present
	contents := make(map[string]string) // manifest filename → content
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		lang, ok := manifestMap[entry.Name()]
		if !ok {
			continue
		}
		found[lang] = true
		contents[entry.Name()] = readFileCapped(filepath.Join(root, entry.Name()), maxManifestRead)
	}

	if found["typescript"] {
		delete(found, "javascript")
	}
	if len(found) == 0 {
		return Stack{}, false, nil
	}

	// Priority order when several languages coexist in one root.
	lang := ""
	for _, candidate := range []string{"go", "rust", "python", "typescript", "javascript", "java", "ruby"} {
		if found[candidate] {
			lang = candidate
			break
		}
	}

	return Stack{
		Language:    lang,
		Framework:   detectFramework(lang, contents),
		TestCommand: testCommands[lang],
	}, true, nil
}

// detectFramework checks cached manifest contents for known framework signatures.
// The first matching rule wins.
func detectFramework(lang string, contents map[string]string) string {
	for _, rule := range frameworkRules[lang] {
		content := contents[rule.manifest]
		if content == "" {
			continue
		}
		if strings.Contains(content, rule.substring) {
			return rule.framework
		}
	}
	return ""
}

// readFileCapped reads up to maxBytes from a file.
// Returns empty string on any error.
func readFileCapped(path string, maxBytes int) string {
	f, err := os.Open(path) //nolint:gosec // path is project root + known manifest filename
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, maxBytes)
	n, _ := f.Read(buf)
	return string(buf[:n])
}
