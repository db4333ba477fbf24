package submission

import (
	"fmt"
	"regexp"
	"strings"

	"agentbackend/core"
)

// deniedCapabilities are the static checks run over submitted strategy code.
// Strategies execute in a sandbox that denies network, process and filesystem
// access anyway; rejecting these up front gives the submitter a clear error
// instead of a dead backtest.
var deniedCapabilities = []struct {
	pattern *regexp.Regexp
	reason  string
}{
	{regexp.MustCompile(`\bimport\s+subprocess\b|\bfrom\s+subprocess\b`), "process execution (subprocess) is not allowed"},
	{regexp.MustCompile(`\bos\.system\s*\(|\bos\.popen\s*\(`), "process execution (os.system/os.popen) is not allowed"},
	{regexp.MustCompile(`\bimport\s+socket\b|\bfrom\s+socket\b`), "raw network access (socket) is not allowed"},
	{regexp.MustCompile(`\bimport\s+requests\b|\bfrom\s+requests\b`), "network access (requests) is not allowed"},
	{regexp.MustCompile(`\bimport\s+urllib\b|\bfrom\s+urllib\b`), "network access (urllib) is not allowed"},
	{regexp.MustCompile(`\bimport\s+http\b|\bfrom\s+http\b`), "network access (http) is not allowed"},
	{regexp.MustCompile(`\bopen\s*\(`), "direct filesystem access (open) is not allowed"},
	{regexp.MustCompile(`\bimport\s+shutil\b|\bfrom\s+shutil\b`), "filesystem access (shutil) is not allowed"},
	{regexp.MustCompile(`\beval\s*\(`), "dynamic code execution (eval) is not allowed"},
	{regexp.MustCompile(`\bexec\s*\(`), "dynamic code execution (exec) is not allowed"},
	{regexp.MustCompile(`__import__\s*\(`), "dynamic imports (__import__) are not allowed"},
	{regexp.MustCompile(`\bimport\s+ctypes\b|\bfrom\s+ctypes\b`), "native code access (ctypes) is not allowed"},
}

var (
	strategyClassPattern = regexp.MustCompile(`class\s+\w+\s*\(\s*(bt|backtrader)\.Strategy\s*\)`)
	nextMethodPattern    = regexp.MustCompile(`def\s+next\s*\(`)
)

// ValidateStrategyCode runs the denylist and structural checks over a submitted
// payload. It returns a ValidationFailedError carrying the first violation
// found, so the submitter always gets one concrete thing to fix.
func ValidateStrategyCode(code []byte) error {
	if len(code) == 0 {
		return &core.ValidationFailedError{Violation: "code payload is empty"}
	}

	text := string(code)

	for _, denied := range deniedCapabilities {
		if loc := denied.pattern.FindStringIndex(text); loc != nil {
			line := 1 + strings.Count(text[:loc[0]], "\n")
			return &core.ValidationFailedError{
				Violation: fmt.Sprintf("line %d: %s", line, denied.reason),
			}
		}
	}

	if !strategyClassPattern.MatchString(text) {
		return &core.ValidationFailedError{
			Violation: "strategy must define a class deriving from bt.Strategy",
		}
	}
	if !nextMethodPattern.MatchString(text) {
		return &core.ValidationFailedError{
			Violation: "strategy class must define a next() method",
		}
	}

	return nil
}
