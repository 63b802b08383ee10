// Package extract derives tags, file mentions, decision phrases, bug
// phrases, and VCS state from a conversation's text. It is pure with
// respect to the message content and deterministic for a given input.
package extract

import (
	"context"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/recall-run/recall/internal/model"
)

const (
	maxTags       = 10
	maxFiles      = 50
	maxDecisions  = 10
	maxBugs       = 10
	maxCaptureLen = 200
)

// tagKeywords maps a tag name to the keyword set that triggers it. Scanned
// in map iteration order is not safe for the "declaration order" truncation
// rule, so tagOrder pins the order explicitly.
var tagKeywords = map[string][]string{
	"security":    {"security", "vulnerab", "injection", "xss", "csrf", "auth", "sanitiz", "escap"},
	"bug-fix":     {"fix", "bug", "patch", "resolve", "error", "issue"},
	"feature":     {"feature", "implement", "add support", "new endpoint"},
	"refactor":    {"refactor", "cleanup", "restructure", "simplify"},
	"testing":     {"test", "spec", "coverage", "assert"},
	"performance": {"performance", "optimi", "slow", "latency", "cache"},
	"database":    {"database", "migration", "schema", "sql", "query"},
	"api":         {"endpoint", "api", "route", "handler"},
	"ui":          {"ui", "frontend", "component", "css", "layout"},
	"docs":        {"documentation", "readme", "comment", "docstring"},
	"devops":      {"deploy", "ci/cd", "pipeline", "docker", "kubernetes"},
}

var tagOrder = []string{
	"security", "bug-fix", "feature", "refactor", "testing",
	"performance", "database", "api", "ui", "docs", "devops",
}

// filePattern matches path-like tokens bearing a recognized extension.
var filePattern = regexp.MustCompile(
	`[\w./-]+\.(?:go|py|js|jsx|ts|tsx|rb|java|c|cpp|h|hpp|rs|sh|bash|sql|json|yaml|yml|toml|md|txt|html|css)\b`,
)

var decisionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)decided to ([^.\n]+)`),
	regexp.MustCompile(`(?i)chose to ([^.\n]+)`),
	regexp.MustCompile(`(?i)implemented ([^.\n]+)`),
	regexp.MustCompile(`(?i)using ([^.\n]+)`),
	regexp.MustCompile(`(?i)will use ([^.\n]+)`),
	regexp.MustCompile(`(?i)approach:\s*([^.\n]+)`),
	regexp.MustCompile(`(?i)solution:\s*([^.\n]+)`),
	regexp.MustCompile(`(?i)strategy:\s*([^.\n]+)`),
}

var bugPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)fixed ([^.\n]+)`),
	regexp.MustCompile(`(?i)resolved ([^.\n]+)`),
	regexp.MustCompile(`(?i)bug:\s*([^.\n]+)`),
	regexp.MustCompile(`(?i)error:\s*([^.\n]+)`),
	regexp.MustCompile(`(?i)issue:\s*([^.\n]+)`),
}

// Extract runs all extraction rules against conv's message text and
// optionally against the repository at projectPath for VCS state.
func Extract(ctx context.Context, conv model.Conversation, projectPath string) model.ExtractedMetadata {
	text := concatText(conv)
	lower := strings.ToLower(text)

	md := model.ExtractedMetadata{
		Tags:         extractTags(lower),
		Files:        extractFiles(text),
		Decisions:    extractPhrases(text, decisionPatterns, maxDecisions),
		Bugs:         extractPhrases(text, bugPatterns, maxBugs),
		MessageCount: len(conv.Messages),
	}

	if projectPath != "" {
		md.GitHash, md.GitBranch = vcsState(ctx, projectPath)
	}

	return md
}

func concatText(conv model.Conversation) string {
	var sb strings.Builder
	for i, m := range conv.Messages {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(m.Content)
	}
	return sb.String()
}

func extractTags(lowerText string) []string {
	var tags []string
	for _, tag := range tagOrder {
		for _, kw := range tagKeywords[tag] {
			if strings.Contains(lowerText, kw) {
				tags = append(tags, tag)
				break
			}
		}
		if len(tags) >= maxTags {
			break
		}
	}
	return tags
}

func extractFiles(text string) []string {
	matches := filePattern.FindAllString(text, -1)
	seen := make(map[string]bool)
	var files []string
	for _, m := range matches {
		m = strings.Trim(m, ".,;:()[]{}\"'")
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		files = append(files, m)
		if len(files) >= maxFiles {
			break
		}
	}
	return files
}

func extractPhrases(text string, patterns []*regexp.Regexp, max int) []string {
	var out []string
	seen := make(map[string]bool)
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			capture := strings.TrimSpace(m[1])
			if capture == "" || len(capture) > maxCaptureLen {
				// Captures longer than the limit are dropped, not truncated.
				continue
			}
			if seen[capture] {
				continue
			}
			seen[capture] = true
			out = append(out, capture)
			if len(out) >= max {
				return out
			}
		}
	}
	return out
}

// vcsState shells out to the git binary scoped to projectPath. Failures
// (not a repository, git not installed, timeout) are silent: if the HEAD
// lookup fails both return values stay nil; if only the branch lookup
// fails the hash is returned and the branch stays nil.
func vcsState(ctx context.Context, projectPath string) (hash, branch *string) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	h, err := runGit(ctx, projectPath, "rev-parse", "HEAD")
	if err != nil {
		return nil, nil
	}
	b, err := runGit(ctx, projectPath, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return &h, nil
	}
	return &h, &b
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", dir}, args...)
	out, err := exec.CommandContext(ctx, "git", fullArgs...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
