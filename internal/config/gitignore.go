package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// LoadGitignorePatterns converts the root .gitignore into doublestar exclude
// patterns. Negated entries are dropped; a missing file yields no patterns.
func LoadGitignorePatterns(rootPath string) ([]string, error) {
	file, err := os.Open(filepath.Join(rootPath, ".gitignore"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var patterns []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if p, ok := gitignoreToPattern(scanner.Text()); ok {
			patterns = append(patterns, p...)
		}
	}
	return patterns, scanner.Err()
}

// gitignoreToPattern maps one .gitignore line to the doublestar patterns
// matching the same paths relative to the project root
func gitignoreToPattern(line string) ([]string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
		return nil, false
	}

	dirOnly := strings.HasSuffix(line, "/")
	line = strings.TrimSuffix(line, "/")
	anchored := strings.Contains(line, "/")
	line = strings.TrimPrefix(line, "/")
	if line == "" {
		return nil, false
	}

	base := line
	if !anchored && !strings.HasPrefix(line, "**/") {
		base = "**/" + line
	}
	if dirOnly {
		return []string{base + "/**"}, true
	}
	return []string{base, base + "/**"}, true
}
