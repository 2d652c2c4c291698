package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// DefaultTestTimeout bounds test suite executions.
const DefaultTestTimeout = 10 * time.Minute

// TestSummary is the structured result of parsing test-runner output.
type TestSummary struct {
	Passed int  `json:"passed"`
	Failed int  `json:"failed"`
	Errors int  `json:"errors"`
	Parsed bool `json:"parsed"`
}

// Ok reports whether the suite passed outright.
func (s TestSummary) Ok() bool {
	return s.Parsed && s.Failed == 0 && s.Errors == 0
}

// RunTests invokes the project's detected test command and parses its
// output into a pass/fail/error summary. Unrecognized output degrades to
// the raw text tagged unparseable rather than failing.
type RunTests struct {
	Root    string
	Command string
	Timeout time.Duration
}

func (t *RunTests) Definition() mcp.Tool {
	return mcp.NewTool("run_tests",
		mcp.WithDescription("Run the project's test suite and return a structured pass/fail summary"),
	)
}

func (t *RunTests) Execute(ctx context.Context, args map[string]any) string {
	_ = args
	if t.Command == "" {
		return "error: no test command detected for this project"
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultTestTimeout
	}

	stdout, stderr, exitCode, err := runShell(ctx, t.Root, t.Command, timeout)
	if err != nil {
		return "error: " + err.Error()
	}

	combined := stdout
	if stderr != "" {
		combined += "\n" + stderr
	}

	summary, ok := ParseTestOutput(combined)
	if !ok {
		return fmt.Sprintf("unparseable test output (exit status %d); raw output follows:\n%s", exitCode, combined)
	}

	data, merr := json.Marshal(summary)
	if merr != nil {
		return fmt.Sprintf("error: marshal summary: %v", merr)
	}
	return string(data)
}

// pytest-style summary line, e.g. "3 passed, 1 failed, 2 errors in 0.42s".
var (
	rePassed = regexp.MustCompile(`(\d+) passed`)
	reFailed = regexp.MustCompile(`(\d+) failed`)
	reErrors = regexp.MustCompile(`(\d+) error`)
)

// ParseTestOutput recognizes two common test-runner formats: the pytest
// summary line ("3 passed, 1 failed") and go test verbose output
// ("--- PASS" / "--- FAIL" markers, "ok"/"FAIL" package lines). Anything
// else reports ok=false.
func ParseTestOutput(out string) (TestSummary, bool) {
	if s, ok := parsePytest(out); ok {
		return s, true
	}
	if s, ok := parseGoTest(out); ok {
		return s, true
	}
	return TestSummary{}, false
}

func parsePytest(out string) (TestSummary, bool) {
	passed := matchCount(rePassed, out)
	failed := matchCount(reFailed, out)
	errs := matchCount(reErrors, out)
	if passed < 0 && failed < 0 && errs < 0 {
		return TestSummary{}, false
	}
	return TestSummary{
		Passed: max(passed, 0),
		Failed: max(failed, 0),
		Errors: max(errs, 0),
		Parsed: true,
	}, true
}

func parseGoTest(out string) (TestSummary, bool) {
	var s TestSummary
	found := false
	for _, line := range strings.Split(out, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "--- PASS"):
			s.Passed++
			found = true
		case strings.HasPrefix(trimmed, "--- FAIL"):
			s.Failed++
			found = true
		case strings.HasPrefix(trimmed, "ok ") || trimmed == "PASS":
			found = true
		case strings.HasPrefix(trimmed, "FAIL") && strings.Contains(trimmed, "[build failed]"):
			s.Errors++
			found = true
		case trimmed == "FAIL" || strings.HasPrefix(trimmed, "FAIL\t"):
			found = true
		}
	}
	if !found {
		return TestSummary{}, false
	}
	s.Parsed = true
	return s, true
}

// matchCount returns the captured count or -1 when the pattern is absent.
func matchCount(re *regexp.Regexp, out string) int {
	m := re.FindStringSubmatch(out)
	if m == nil {
		return -1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return -1
	}
	return n
}
