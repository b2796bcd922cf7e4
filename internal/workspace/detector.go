// Package workspace inspects the workspace to classify the kind of project
// it contains.
package workspace

import (
	"os"
	"path/filepath"
	"strings"
)

// ProjectType is the detected project ecosystem.
type ProjectType string

const (
	ProjectTypeGo      ProjectType = "go"
	ProjectTypeNode    ProjectType = "node"
	ProjectTypePython  ProjectType = "python"
	ProjectTypeRust    ProjectType = "rust"
	ProjectTypeUnknown ProjectType = "unknown"
)

// manifests maps well-known manifest files to their project type, checked in
// order.
var manifests = []struct {
	file string
	typ  ProjectType
}{
	{"go.mod", ProjectTypeGo},
	{"package.json", ProjectTypeNode},
	{"pyproject.toml", ProjectTypePython},
	{"requirements.txt", ProjectTypePython},
	{"Cargo.toml", ProjectTypeRust},
}

// minExtensionCount is the smallest number of matching source files the
// extension fallback accepts as evidence.
const minExtensionCount = 3

// DetectProjectType classifies the workspace, preferring manifest files and
// falling back to counting source file extensions in the root.
func DetectProjectType(root string) ProjectType {
	for _, m := range manifests {
		if _, err := os.Stat(filepath.Join(root, m.file)); err == nil {
			return m.typ
		}
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return ProjectTypeUnknown
	}

	counts := make(map[ProjectType]int)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".go":
			counts[ProjectTypeGo]++
		case ".ts", ".tsx", ".js", ".jsx":
			counts[ProjectTypeNode]++
		case ".py":
			counts[ProjectTypePython]++
		case ".rs":
			counts[ProjectTypeRust]++
		}
	}

	best := ProjectTypeUnknown
	bestCount := 0
	for _, typ := range []ProjectType{ProjectTypeGo, ProjectTypeNode, ProjectTypePython, ProjectTypeRust} {
		if counts[typ] > bestCount {
			best, bestCount = typ, counts[typ]
		}
	}
	if bestCount < minExtensionCount {
		return ProjectTypeUnknown
	}
	return best
}
