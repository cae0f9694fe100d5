package commands

import (
	"bytes"
	"strings"
	"testing"
)

func TestRegistry_RejectsClashes(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&SyncCmd{}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(&SyncCmd{}); err == nil {
		t.Error("expected duplicate name to fail")
	}
	if err := r.Register(&ProjectsCmd{}); err != nil {
		t.Fatal(err)
	}
	// "lists" is already taken as an alias of projects.
	if err := r.Register(&aliasCmd{HelpCmd{}, "lists"}); err == nil {
		t.Error("expected alias clash to fail")
	}
	if _, ok := r.Find("help"); ok {
		t.Error("failed registration must not leave partial entries")
	}
}

func TestRegistry_FindByAlias(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&WatchCmd{}); err != nil {
		t.Fatal(err)
	}
	cmd, ok := r.Find("daemon")
	if !ok || cmd.Name() != "watch" {
		t.Errorf("Find(daemon) = %v, %v", cmd, ok)
	}
}

func TestWriteUsage(t *testing.T) {
	r := NewRegistry()
	for _, c := range []Command{&WatchCmd{}, &SyncCmd{}, &MapCmd{}} {
		if err := r.Register(c); err != nil {
			t.Fatal(err)
		}
	}
	var buf bytes.Buffer
	writeUsage(&buf, r)

	lines := strings.Split(buf.String(), "\n")
	if lines[0] != "Usage:" {
		t.Fatalf("first line = %q", lines[0])
	}
	order := []string{"gtasksync map", "gtasksync sync", "gtasksync watch"}
	for i, want := range order {
		if !strings.HasPrefix(strings.TrimSpace(lines[i+1]), want) {
			t.Errorf("line %d = %q, want prefix %q", i+1, lines[i+1], want)
		}
	}
	if !strings.Contains(buf.String(), "(alias: daemon)") {
		t.Error("aliases should be listed")
	}
}

type aliasCmd struct {
	HelpCmd
	alias string
}

func (c *aliasCmd) Aliases() []string { return []string{c.alias} }
