package repair

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Request describes one compile failure to fix.
type Request struct {
	// Source is the full Java file that failed to compile.
	Source string
	// Errors is the compiler diagnostic output.
	Errors string
	// Context optionally carries the signature of the class under
	// test.
	Context string
}

// Fixer produces a corrected Java file from a compile failure.
type Fixer interface {
	FixCompile(ctx context.Context, req Request) (string, error)
}

var _ Fixer = (*Client)(nil)

const fixSystemPrompt = "You repair Java unit tests that fail to compile. " +
	"Preserve the test logic exactly; change only what is needed to compile."

// FixCompile asks the model for a corrected file and extracts the Java
// source from the response.
func (c *Client) FixCompile(ctx context.Context, req Request) (string, error) {
	prompt := fmt.Sprintf(`Fix the following Java compilation errors in the test file.

CONTEXT (System Under Test):
%s

CODE:
`+"```java\n%s\n```"+`

ERRORS:
%s

INSTRUCTIONS:
1. Fix missing imports (e.g. @RunWith, @Test).
2. Fix missing symbols (e.g. class names, methods).
3. Do not remove the test logic, just fix the syntax/imports.
4. Output the FULL corrected Java file.

OUTPUT ONLY JAVA CODE.`, req.Context, req.Source, req.Errors)

	resp, err := c.complete(ctx, fixSystemPrompt, prompt)
	if err != nil {
		return "", err
	}

	code := ExtractJava(resp)
	if strings.TrimSpace(code) == "" {
		return "", fmt.Errorf("model returned no code")
	}
	return code, nil
}

var (
	reJavaFence = regexp.MustCompile("(?s)```java\\s*(.*?)\\s*```")
	reAnyFence  = regexp.MustCompile("(?s)```\\s*(.*?)\\s*```")
)

// ExtractJava pulls Java source out of a model response: fenced code
// blocks first, then a heuristic scan for the start of a compilation
// unit.
func ExtractJava(text string) string {
	if m := reJavaFence.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := reAnyFence.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		stripped := strings.TrimSpace(line)
		if strings.HasPrefix(stripped, "package ") ||
			strings.HasPrefix(stripped, "import ") ||
			strings.HasPrefix(stripped, "public class ") ||
			strings.HasPrefix(stripped, "@RunWith") {
			return strings.Join(lines[i:], "\n")
		}
	}
	return text
}
