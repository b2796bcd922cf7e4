package workspace

// BuildCommand returns the canonical build invocation for a project type, or
// an empty name when the ecosystem has no build step.
func BuildCommand(typ ProjectType) (string, []string) {
	switch typ {
	case ProjectTypeGo:
		return "go", []string{"build", "./..."}
	case ProjectTypeNode:
		return "npm", []string{"run", "build"}
	case ProjectTypeRust:
		return "cargo", []string{"build"}
	default:
		return "", nil
	}
}

// TestCommand returns the canonical test invocation for a project type.
func TestCommand(typ ProjectType) (string, []string) {
	switch typ {
	case ProjectTypeGo:
		return "go", []string{"test", "./..."}
	case ProjectTypeNode:
		return "npm", []string{"test"}
	case ProjectTypePython:
		return "pytest", nil
	case ProjectTypeRust:
		return "cargo", []string{"test"}
	default:
		return "", nil
	}
}
