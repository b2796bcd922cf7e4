package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mkaddoura/drover/internal/agent"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(context.Background(), filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreSaveAndLoad(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	repoPath := "/path/to/my/project"

	sess := &Session{
		ID:       "test-session-id",
		RepoPath: repoPath,
		Title:    "Test Session",
		History: []agent.Message{
			agent.UserMessage("hello"),
			{
				Role: agent.RoleAssistant,
				Blocks: []agent.ContentBlock{
					{Type: agent.BlockText, Text: "hi there"},
					{Type: agent.BlockToolCall, Call: &agent.ToolCall{
						ID:   "call_1",
						Name: "read_file",
						Args: map[string]any{"path": "main.go"},
					}},
				},
				Usage: &agent.Usage{Prompt: 10, Completion: 5, Total: 15},
			},
			{
				Role:       agent.RoleToolResult,
				ToolCallID: "call_1",
				ToolName:   "read_file",
				Blocks:     []agent.ContentBlock{{Type: agent.BlockText, Text: "package main"}},
			},
		},
		Summary: "greeted and read main.go",
	}

	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if sess.RepoHash == "" {
		t.Error("save did not populate RepoHash")
	}

	loaded, err := store.Load(ctx, sess.ID, repoPath)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Title != sess.Title || loaded.Summary != sess.Summary {
		t.Errorf("loaded = %+v", loaded)
	}
	if len(loaded.History) != 3 {
		t.Fatalf("history length = %d, want 3", len(loaded.History))
	}
	if loaded.History[0].Text() != "hello" {
		t.Errorf("first message = %q", loaded.History[0].Text())
	}

	calls := loaded.History[1].ToolCalls()
	if len(calls) != 1 || calls[0].Name != "read_file" {
		t.Fatalf("tool calls = %v", calls)
	}
	if calls[0].Args["path"] != "main.go" {
		t.Errorf("tool args = %v", calls[0].Args)
	}
	if u := loaded.History[1].Usage; u == nil || u.Total != 15 {
		t.Errorf("usage = %v", u)
	}
	if loaded.History[2].ToolCallID != "call_1" {
		t.Errorf("tool result id = %q", loaded.History[2].ToolCallID)
	}
}

func TestStoreLoadMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Load(context.Background(), "nope", "/some/repo")
	if err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStoreSaveUpdatesExisting(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	repoPath := "/repo"

	sess := &Session{ID: "s1", RepoPath: repoPath, Title: "first"}
	if err := store.Save(ctx, sess); err != nil {
		t.Fatal(err)
	}

	sess.Title = "second"
	sess.History = append(sess.History, agent.UserMessage("more"))
	if err := store.Save(ctx, sess); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.Load(ctx, "s1", repoPath)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Title != "second" || len(loaded.History) != 1 {
		t.Errorf("loaded = %+v", loaded)
	}

	list, err := store.List(ctx, repoPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("list has %d entries after upsert, want 1", len(list))
	}
}

func TestStoreListOrderedByUpdate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	repoPath := "/repo"

	old := &Session{ID: "old", RepoPath: repoPath, Title: "old"}
	if err := store.Save(ctx, old); err != nil {
		t.Fatal(err)
	}
	// Force a distinct updated_at second for deterministic ordering.
	if _, err := store.db.Exec(`UPDATE sessions SET updated_at = ? WHERE id = 'old'`,
		time.Now().Add(-time.Hour).Unix()); err != nil {
		t.Fatal(err)
	}

	recent := &Session{ID: "recent", RepoPath: repoPath, Title: "recent"}
	if err := store.Save(ctx, recent); err != nil {
		t.Fatal(err)
	}

	list, err := store.List(ctx, repoPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("list length = %d, want 2", len(list))
	}
	if list[0].ID != "recent" || list[1].ID != "old" {
		t.Errorf("order = [%s, %s], want [recent, old]", list[0].ID, list[1].ID)
	}
}

func TestStoreScopesByRepo(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, &Session{ID: "a", RepoPath: "/repo/a"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, &Session{ID: "b", RepoPath: "/repo/b"}); err != nil {
		t.Fatal(err)
	}

	listA, err := store.List(ctx, "/repo/a")
	if err != nil {
		t.Fatal(err)
	}
	if len(listA) != 1 || listA[0].ID != "a" {
		t.Errorf("list for /repo/a = %v", listA)
	}

	if _, err := store.Load(ctx, "b", "/repo/a"); err != ErrNotFound {
		t.Errorf("cross-repo load err = %v, want ErrNotFound", err)
	}
}

func TestStoreDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	repoPath := "/repo"

	if err := store.Save(ctx, &Session{ID: "gone", RepoPath: repoPath}); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, "gone", repoPath); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(ctx, "gone", repoPath); err != ErrNotFound {
		t.Errorf("err after delete = %v, want ErrNotFound", err)
	}
	// Deleting again is a no-op.
	if err := store.Delete(ctx, "gone", repoPath); err != nil {
		t.Errorf("second delete failed: %v", err)
	}
}

func TestRepoHashStable(t *testing.T) {
	a := RepoHash("/path/to/project")
	b := RepoHash("/path/to/project/")
	if a != b {
		t.Errorf("hash differs for equivalent paths: %s vs %s", a, b)
	}
	if len(a) != 12 {
		t.Errorf("hash length = %d, want 12", len(a))
	}
	if a == RepoHash("/other/project") {
		t.Error("distinct paths produced identical hashes")
	}
}
