package editing

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mkaddoura/drover/internal/agent"
)

func runReplace(t *testing.T, root string, args map[string]any) map[string]any {
	t.Helper()
	tool := NewSearchReplaceTool(root)
	res, err := tool.Execute(context.Background(), agent.ToolCall{Name: tool.Name, Args: args}, func(string) {})
	if err != nil {
		t.Fatalf("search_replace failed: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(res.Text()), &payload); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	return payload
}

func writeFixture(t *testing.T, root, name, content string) string {
	t.Helper()
	full := filepath.Join(root, name)
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return full
}

func TestSearchReplaceSingle(t *testing.T) {
	root := t.TempDir()
	full := writeFixture(t, root, "main.go", "func oldName() {}\n")

	payload := runReplace(t, root, map[string]any{
		"file_path":  "main.go",
		"old_string": "oldName",
		"new_string": "newName",
	})
	if payload["status"] != "success" {
		t.Fatalf("status = %v: %v", payload["status"], payload["error"])
	}

	data, _ := os.ReadFile(full)
	if string(data) != "func newName() {}\n" {
		t.Errorf("file = %q", data)
	}
}

func TestSearchReplaceAmbiguousRefused(t *testing.T) {
	root := t.TempDir()
	full := writeFixture(t, root, "dup.txt", "x = 1\nx = 1\n")

	payload := runReplace(t, root, map[string]any{
		"file_path":  "dup.txt",
		"old_string": "x = 1",
		"new_string": "x = 2",
	})
	if payload["status"] != "failed" {
		t.Fatal("ambiguous replacement was not refused")
	}
	if !strings.Contains(payload["error"].(string), "replace_all") {
		t.Errorf("error = %v, want replace_all suggestion", payload["error"])
	}

	data, _ := os.ReadFile(full)
	if string(data) != "x = 1\nx = 1\n" {
		t.Error("refused edit still modified the file")
	}
}

func TestSearchReplaceAll(t *testing.T) {
	root := t.TempDir()
	full := writeFixture(t, root, "dup.txt", "x = 1\nx = 1\n")

	payload := runReplace(t, root, map[string]any{
		"file_path":   "dup.txt",
		"old_string":  "x = 1",
		"new_string":  "x = 2",
		"replace_all": true,
	})
	if payload["status"] != "success" {
		t.Fatalf("status = %v", payload["status"])
	}
	if payload["replacements"].(float64) != 2 {
		t.Errorf("replacements = %v, want 2", payload["replacements"])
	}

	data, _ := os.ReadFile(full)
	if string(data) != "x = 2\nx = 2\n" {
		t.Errorf("file = %q", data)
	}
}

func TestSearchReplaceWhitespaceHint(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "indent.go", "\tif ok {\n\t\treturn\n\t}\n")

	payload := runReplace(t, root, map[string]any{
		"file_path":  "indent.go",
		"old_string": "if ok {\n  return\n}",
		"new_string": "if ok {\n  return nil\n}",
	})
	if payload["status"] != "failed" {
		t.Fatal("whitespace-mismatched edit succeeded unexpectedly")
	}
	if !strings.Contains(payload["error"].(string), "whitespace") {
		t.Errorf("error = %v, want whitespace hint", payload["error"])
	}
}

func TestSearchReplaceGeneratedFileRefused(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "gen.go", "// Code generated by protoc. DO NOT EDIT.\nvar x = 1\n")

	payload := runReplace(t, root, map[string]any{
		"file_path":  "gen.go",
		"old_string": "var x = 1",
		"new_string": "var x = 2",
	})
	if payload["status"] != "failed" {
		t.Error("edit of generated file was not refused")
	}
}

func TestSearchReplaceNoopRefused(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "same.txt", "hello\n")

	payload := runReplace(t, root, map[string]any{
		"file_path":  "same.txt",
		"old_string": "hello",
		"new_string": "hello",
	})
	if payload["status"] != "failed" {
		t.Error("identical old/new strings accepted")
	}
}
