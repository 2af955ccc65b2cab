package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmbeddedGreeting(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := c.Render(KeyGreeting, ChatData{Bot: "CheeseBot", Opponent: "alice"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(got, "alice") || !strings.Contains(got, "CheeseBot") {
		t.Fatalf("unexpected greeting: %q", got)
	}
	for _, k := range []string{KeySpectatorGreeting, KeyGoodbyeWin, KeyGoodbyeLoss, KeyGoodbyeDraw, KeyGoodbyeAborted} {
		if _, err := c.Render(k, ChatData{Bot: "b", Opponent: "o"}); err != nil {
			t.Fatalf("render %s: %v", k, err)
		}
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("chat:\n  greeting: \"yo {{.Opponent}}\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := c.Render(KeyGreeting, ChatData{Opponent: "bob"})
	if err != nil || got != "yo bob" {
		t.Fatalf("override not applied: %q %v", got, err)
	}
	if _, err := c.Render(KeyGoodbyeWin, ChatData{Opponent: "bob"}); err != nil {
		t.Fatalf("defaults lost after override: %v", err)
	}
}

func TestOverrideDuplicateKeysRejected(t *testing.T) {
	dir := t.TempDir()
	body := []byte("chat:\n  greeting: \"x\"\n")
	_ = os.WriteFile(filepath.Join(dir, "a.yaml"), body, 0o644)
	_ = os.WriteFile(filepath.Join(dir, "b.yml"), body, 0o644)
	if _, err := New(dir); err == nil {
		t.Fatalf("expected duplicate key error")
	}
}

func TestRenderMissingKeyAndField(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Render("chat.nope", nil); err == nil {
		t.Fatalf("expected missing template error")
	}
	if _, err := c.Render(KeyGreeting, map[string]string{"Bot": "x"}); err == nil {
		t.Fatalf("expected missing field error")
	}
}

func TestGoodbyeKey(t *testing.T) {
	cases := []struct{ status, winner, color, want string }{
		{"mate", "white", "white", KeyGoodbyeWin},
		{"resign", "black", "white", KeyGoodbyeLoss},
		{"stalemate", "", "black", KeyGoodbyeDraw},
		{"aborted", "", "white", KeyGoodbyeAborted},
	}
	for _, c := range cases {
		if got := GoodbyeKey(c.status, c.winner, c.color); got != c.want {
			t.Fatalf("%+v: got %s", c, got)
		}
	}
}
