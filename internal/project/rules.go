// Package project handles per-workspace configuration stored under the
// .drover directory.
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DroverDir is the per-workspace configuration directory.
	DroverDir = ".drover"
	// RulesFile holds free-form instructions appended to the system prompt.
	RulesFile = "rules"
)

func rulesPath(root string) string {
	return filepath.Join(root, DroverDir, RulesFile)
}

// RulesExist reports whether the workspace has a rules file.
func RulesExist(root string) bool {
	_, err := os.Stat(rulesPath(root))
	return !os.IsNotExist(err)
}

// LoadRules reads the workspace rules. A missing file yields an empty string
// and no error.
func LoadRules(root string) (string, error) {
	data, err := os.ReadFile(rulesPath(root))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read rules file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// SaveRules writes the workspace rules, creating the .drover directory if
// needed.
func SaveRules(root, rules string) error {
	dir := filepath.Join(root, DroverDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", DroverDir, err)
	}
	if err := os.WriteFile(rulesPath(root), []byte(rules), 0o644); err != nil {
		return fmt.Errorf("failed to write rules file: %w", err)
	}
	return nil
}
