// Package evaluate measures refined test suites: line and branch
// coverage, mutation score, and static source quality metrics. The
// same measurement path scores candidates during refinement and
// produces the final evaluation artifacts.
package evaluate

import (
	"os"
	"regexp"
	"strings"
)

// SourceMetrics are static measurements over one Java source file.
type SourceMetrics struct {
	SLOC                int     `json:"sloc"`
	CommentLines        int     `json:"comment_lines"`
	JavadocLines        int     `json:"javadoc_lines"`
	Cyclomatic          int     `json:"cyclomatic_complexity"`
	SwitchCount         int     `json:"switch_conditions"`
	StaticCalls         int     `json:"static_calls"`
	TypeChecks          int     `json:"type_checks"`
	NullChecks          int     `json:"null_checks"`
	StringOps           int     `json:"string_ops"`
	PrimitiveConditions int     `json:"primitive_conditions"`
	CollectionsUsage    int     `json:"collections_usage"`
	StdLibImports       int     `json:"std_lib_dependencies"`
	ExternalImports     int     `json:"external_dependencies"`
	InternalImports     int     `json:"internal_dependencies"`
	AvgIdentifierLen    float64 `json:"avg_identifier_length"`
	MaxNestingDepth     int     `json:"max_nesting_depth"`
	SmellCount          int     `json:"smell_count"`
}

var (
	reBranch     = regexp.MustCompile(`\bif\b|\bfor\b|\bwhile\b|\bcase\b|\bcatch\b|&&|\|\||\?`)
	reSwitch     = regexp.MustCompile(`\bswitch\b`)
	reStaticCall = regexp.MustCompile(`\b[A-Z][a-zA-Z0-9_]*\.[a-zA-Z0-9_]+\(`)
	reInstanceof = regexp.MustCompile(`\binstanceof\b`)
	reNullCheck  = regexp.MustCompile(`==\s*null|!=\s*null`)
	reStringOp   = regexp.MustCompile(`\.length\(\)|\.substring\(|\.indexOf\(|\.equals\(`)
	rePrimCond   = regexp.MustCompile(`[a-zA-Z0-9_]+\s*(==|!=|<|>|<=|>=)\s*[0-9]+`)
	reCollection = regexp.MustCompile(`\b(List|Set|Map|Collection|ArrayList|HashSet|HashMap)\b`)
	reImport     = regexp.MustCompile(`^import\s+([a-zA-Z0-9_.]+);`)
	reIdentifier = regexp.MustCompile(`\b[a-zA-Z_][a-zA-Z0-9_]*\b`)

	// Test smells.
	reSleep      = regexp.MustCompile(`Thread\.sleep\(`)
	rePrint      = regexp.MustCompile(`System\.(out|err)\.print`)
	reEmptyCatch = regexp.MustCompile(`catch\s*\([^)]*\)\s*\{\s*\}`)
	reIgnored    = regexp.MustCompile(`@Ignore\b|@Disabled\b`)
)

var javaKeywords = map[string]bool{
	"if": true, "else": true, "for": true, "while": true, "do": true,
	"switch": true, "case": true, "default": true, "break": true,
	"continue": true, "return": true, "try": true, "catch": true,
	"finally": true, "throw": true, "throws": true, "public": true,
	"protected": true, "private": true, "static": true, "final": true,
	"void": true, "int": true, "double": true, "float": true,
	"boolean": true, "char": true, "byte": true, "short": true,
	"long": true, "class": true, "interface": true, "enum": true,
	"extends": true, "implements": true, "new": true, "this": true,
	"super": true, "import": true, "package": true, "true": true,
	"false": true, "null": true,
}

// AnalyzeSource computes static metrics over Java source text.
func AnalyzeSource(src string) SourceMetrics {
	m := SourceMetrics{Cyclomatic: 1}
	lines := strings.Split(src, "\n")

	countLines(lines, &m)
	countImports(lines, &m)

	m.Cyclomatic += len(reBranch.FindAllString(src, -1))
	m.SwitchCount = len(reSwitch.FindAllString(src, -1))
	m.StaticCalls = len(reStaticCall.FindAllString(src, -1))
	m.TypeChecks = len(reInstanceof.FindAllString(src, -1))
	m.NullChecks = len(reNullCheck.FindAllString(src, -1))
	m.StringOps = len(reStringOp.FindAllString(src, -1))
	m.PrimitiveConditions = len(rePrimCond.FindAllString(src, -1))
	m.CollectionsUsage = len(reCollection.FindAllString(src, -1))

	m.AvgIdentifierLen = avgIdentifierLength(src)
	m.MaxNestingDepth = maxNestingDepth(lines)

	m.SmellCount = len(reSleep.FindAllString(src, -1)) +
		len(rePrint.FindAllString(src, -1)) +
		len(reEmptyCatch.FindAllString(src, -1)) +
		len(reIgnored.FindAllString(src, -1))

	return m
}

// AnalyzeFile reads and analyzes a Java source file.
func AnalyzeFile(path string) (SourceMetrics, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SourceMetrics{}, err
	}
	return AnalyzeSource(string(data)), nil
}

func countLines(lines []string, m *SourceMetrics) {
	inBlock := false
	for _, line := range lines {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			continue
		}
		if inBlock {
			m.CommentLines++
			if strings.Contains(stripped, "*/") {
				inBlock = false
			}
			continue
		}
		if strings.HasPrefix(stripped, "/*") {
			m.CommentLines++
			if strings.HasPrefix(stripped, "/**") {
				m.JavadocLines++
			}
			if !strings.Contains(stripped, "*/") {
				inBlock = true
			}
			continue
		}
		if strings.HasPrefix(stripped, "//") {
			m.CommentLines++
			continue
		}
		m.SLOC++
	}
}

func countImports(lines []string, m *SourceMetrics) {
	for _, line := range lines {
		match := reImport.FindStringSubmatch(strings.TrimSpace(line))
		if match == nil {
			continue
		}
		pkg := match[1]
		switch {
		case strings.HasPrefix(pkg, "java.") || strings.HasPrefix(pkg, "javax."):
			m.StdLibImports++
		case strings.HasPrefix(pkg, "org.junit") || strings.HasPrefix(pkg, "org.evosuite"):
			m.ExternalImports++
		default:
			m.InternalImports++
		}
	}
}

func avgIdentifierLength(src string) float64 {
	var total, count int
	for _, id := range reIdentifier.FindAllString(src, -1) {
		if javaKeywords[id] {
			continue
		}
		total += len(id)
		count++
	}
	if count == 0 {
		return 0
	}
	return float64(total) / float64(count)
}

// maxNestingDepth approximates nesting from indentation, assuming
// four-space indents.
func maxNestingDepth(lines []string) int {
	max := 0
	for _, line := range lines {
		stripped := strings.TrimLeft(line, " \t")
		if stripped == "" {
			continue
		}
		indent := len(line) - len(stripped)
		if indent > max {
			max = indent
		}
	}
	return max / 4
}

const (
	complexityCeiling = 50
	smellCeiling      = 10
	nestingCeiling    = 8
	idealIdentLen     = 8.0
)

// NormalizedComplexity maps cyclomatic complexity into [0,1], higher
// meaning more complex.
func (m SourceMetrics) NormalizedComplexity() float64 {
	return clamp01(float64(m.Cyclomatic) / complexityCeiling)
}

// NormalizedSmells maps the smell count into [0,1].
func (m SourceMetrics) NormalizedSmells() float64 {
	return clamp01(float64(m.SmellCount) / smellCeiling)
}

// ReadabilityScore combines nesting depth and identifier length into
// [0,1], higher meaning more readable.
func (m SourceMetrics) ReadabilityScore() float64 {
	nesting := 1 - clamp01(float64(m.MaxNestingDepth)/nestingCeiling)

	identDelta := m.AvgIdentifierLen - idealIdentLen
	if identDelta < 0 {
		identDelta = -identDelta
	}
	ident := 1 - clamp01(identDelta/12)

	return 0.5*nesting + 0.5*ident
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
