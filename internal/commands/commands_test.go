package commands_test

import (
	"bytes"
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gtasksync/internal/commands"
	"gtasksync/internal/config"
	"gtasksync/internal/exitcode"
	"gtasksync/internal/taskline"
	"gtasksync/internal/testutil"
)

// runCommand is a helper to run a command with FakeService.
func runCommand(t *testing.T, cmd commands.Command, svc *testutil.FakeService, args []string, quiet bool) (stdout, stderr string, code int) {
	t.Helper()
	cfg := &config.Config{
		Dir:   t.TempDir(),
		Quiet: quiet,
	}
	return runWithConfig(t, cfg, cmd, svc, args)
}

func runWithConfig(t *testing.T, cfg *config.Config, cmd commands.Command, svc *testutil.FakeService, args []string) (stdout, stderr string, code int) {
	t.Helper()

	var outBuf, errBuf bytes.Buffer
	ctx := context.Background()
	if svc == nil {
		code = cmd.Run(ctx, cfg, nil, args, &outBuf, &errBuf)
	} else {
		code = cmd.Run(ctx, cfg, svc, args, &outBuf, &errBuf)
	}
	return outBuf.String(), errBuf.String(), code
}

// newVault creates a config directory whose settings point at a fresh
// vault holding files.
func newVault(t *testing.T, files map[string]string) (*config.Config, string) {
	t.Helper()
	cfg := &config.Config{Dir: t.TempDir()}
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := config.WriteDefaultSettings(cfg.SettingsPath(), root); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	return cfg, root
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

// Tests for version command
func TestVersionCommand(t *testing.T) {
	cmd := &commands.VersionCmd{}

	stdout, stderr, code := runCommand(t, cmd, nil, nil, false)

	if code != exitcode.Success {
		t.Errorf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if stderr != "" {
		t.Errorf("expected no stderr, got %q", stderr)
	}
	if stdout != "gtasksync 0.1.0\n" {
		t.Errorf("expected version output, got %q", stdout)
	}
}

func TestVersionCommand_Verbose(t *testing.T) {
	cmd := &commands.VersionCmd{}
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	cmd.RegisterFlags(fs)
	if err := fs.Parse([]string{"--verbose"}); err != nil {
		t.Fatal(err)
	}

	stdout, _, code := runCommand(t, cmd, nil, nil, false)

	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if !strings.HasPrefix(stdout, "gtasksync 0.1.0\ncache format: 1.2.0\n") {
		t.Errorf("unexpected verbose output %q", stdout)
	}
}

// Tests for help command
func TestHelpCommand(t *testing.T) {
	cmd := &commands.HelpCmd{}

	stdout, stderr, code := runCommand(t, cmd, nil, nil, false)

	if code != exitcode.Success {
		t.Errorf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if stderr != "" {
		t.Errorf("expected no stderr, got %q", stderr)
	}
	for _, want := range []string{"Usage:", "gtasksync sync", "gtasksync watch", "#gtask"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("help output should contain %q", want)
		}
	}
}

// Tests for init command
func TestInitCommand(t *testing.T) {
	cfg := &config.Config{Dir: t.TempDir()}
	cmd := &commands.InitCmd{}

	stdout, stderr, code := runWithConfig(t, cfg, cmd, nil, nil)
	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d (%s)", exitcode.Success, code, stderr)
	}
	if stdout != cfg.SettingsPath()+"\n" {
		t.Errorf("unexpected output %q", stdout)
	}
	settings, err := config.LoadSettings(cfg.SettingsPath())
	if err != nil {
		t.Fatalf("written settings do not load: %v", err)
	}
	if settings.SyncInterval != config.DefaultSettings().SyncInterval {
		t.Errorf("sync interval = %v", settings.SyncInterval)
	}

	_, stderr, code = runWithConfig(t, cfg, cmd, nil, nil)
	if code != exitcode.UserError || !strings.Contains(stderr, "already exists") {
		t.Errorf("second init: code %d, stderr %q", code, stderr)
	}
}

// Tests for sync command
func TestSyncCommand_NoVault(t *testing.T) {
	cmd := &commands.SyncCmd{}

	_, stderr, code := runCommand(t, cmd, testutil.NewFakeService(), nil, false)

	if code != exitcode.AuthError {
		t.Errorf("expected exit code %d, got %d", exitcode.AuthError, code)
	}
	if !strings.Contains(stderr, "vault_path") {
		t.Errorf("expected a vault_path hint, got %q", stderr)
	}
}

func TestSyncCommand_Document(t *testing.T) {
	cfg, root := newVault(t, map[string]string{"a.md": "- [ ] Buy milk #gtask\n"})
	svc := testutil.NewFakeService()
	cmd := &commands.SyncCmd{}
	cmd.SetDoc("a.md")

	stdout, stderr, code := runWithConfig(t, cfg, cmd, svc, nil)

	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d (%s)", exitcode.Success, code, stderr)
	}
	if want := "document: 1 document, 1 created, 0 updated, 0 deleted, 0 pulled\n"; stdout != want {
		t.Errorf("expected %q, got %q", want, stdout)
	}
	want := "- [ ] Buy milk #gtask " + taskline.TaskToken("t001") + "\n"
	if got := readFile(t, filepath.Join(root, "a.md")); got != want {
		t.Errorf("document = %q, want %q", got, want)
	}

	// The document is tracked now, so a vault pass covers it without changes.
	vault := &commands.SyncCmd{}
	stdout, _, code = runWithConfig(t, cfg, vault, svc, nil)
	if code != exitcode.Success {
		t.Fatalf("vault sync exit code %d", code)
	}
	if want := "vault: 1 document, 0 created, 0 updated, 0 deleted, 0 pulled\n"; stdout != want {
		t.Errorf("expected %q, got %q", want, stdout)
	}
}

func TestSyncCommand_Quiet(t *testing.T) {
	cfg, _ := newVault(t, map[string]string{"a.md": "- [ ] Buy milk #gtask\n"})
	cfg.Quiet = true
	cmd := &commands.SyncCmd{}
	cmd.SetDoc("a.md")

	stdout, _, code := runWithConfig(t, cfg, cmd, testutil.NewFakeService(), nil)
	if code != exitcode.Success || stdout != "" {
		t.Errorf("code %d, stdout %q", code, stdout)
	}
}

// Tests for map command
func TestMapCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	content := "# Inbox\n- [ ] Parent " + taskline.TaskToken("p1") + "\n\t- [ ] Child " + taskline.ItemToken("c1") + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	stdout, stderr, code := runCommand(t, &commands.MapCmd{}, nil, []string{path}, false)
	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d (%s)", exitcode.Success, code, stderr)
	}
	for _, want := range []string{`"id": "p1"`, `"id": "c1"`, `"parentId": "p1"`, `"kind": "Item"`} {
		if !strings.Contains(stdout, want) {
			t.Errorf("map output missing %s:\n%s", want, stdout)
		}
	}
}

func TestMapCommand_MissingFile(t *testing.T) {
	_, _, code := runCommand(t, &commands.MapCmd{}, nil, []string{"/nonexistent/a.md"}, false)
	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
}

// Tests for projects command
func TestProjectsCommand(t *testing.T) {
	cfg, _ := newVault(t, nil)
	svc := testutil.NewFakeService()
	svc.AddProject("work", "Work")

	stdout, stderr, code := runWithConfig(t, cfg, &commands.ProjectsCmd{}, svc, nil)

	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d (%s)", exitcode.Success, code, stderr)
	}
	expected := "My Tasks (@default) [default]\nWork (work)\n"
	if stdout != expected {
		t.Errorf("expected %q, got %q", expected, stdout)
	}
}

// Tests for default-project command
func TestDefaultProjectCommand(t *testing.T) {
	cfg, root := newVault(t, map[string]string{"a.md": "- [ ] Draft report #gtask\n"})
	svc := testutil.NewFakeService()
	svc.AddProject("work", "Work")

	stdout, stderr, code := runWithConfig(t, cfg, &commands.DefaultProjectCmd{}, svc, []string{"a.md", "Work"})
	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d (%s)", exitcode.Success, code, stderr)
	}
	if stdout != "ok\n" {
		t.Errorf("expected ok, got %q", stdout)
	}

	sync := &commands.SyncCmd{}
	sync.SetDoc(filepath.Join(root, "a.md"))
	if _, stderr, code := runWithConfig(t, cfg, sync, svc, nil); code != exitcode.Success {
		t.Fatalf("sync exit code %d (%s)", code, stderr)
	}
	if n := len(svc.Tasks("work")); n != 1 {
		t.Errorf("tasks in work = %d, want 1", n)
	}
}

func TestDefaultProjectCommand_UnknownProject(t *testing.T) {
	cfg, _ := newVault(t, map[string]string{"a.md": ""})

	_, _, code := runWithConfig(t, cfg, &commands.DefaultProjectCmd{}, testutil.NewFakeService(), []string{"a.md", "Nope"})
	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
}

func TestDefaultProjectCommand_Usage(t *testing.T) {
	_, stderr, code := runCommand(t, &commands.DefaultProjectCmd{}, testutil.NewFakeService(), []string{"a.md"}, false)
	if code != exitcode.UserError || !strings.Contains(stderr, "usage") {
		t.Errorf("code %d, stderr %q", code, stderr)
	}
}

// Tests for backup and import commands
func TestBackupAndImport(t *testing.T) {
	cfg, _ := newVault(t, map[string]string{"a.md": "- [ ] Buy milk #gtask\n"})
	svc := testutil.NewFakeService()
	sync := &commands.SyncCmd{}
	sync.SetDoc("a.md")
	if _, stderr, code := runWithConfig(t, cfg, sync, svc, nil); code != exitcode.Success {
		t.Fatalf("sync exit code %d (%s)", code, stderr)
	}

	out := filepath.Join(t.TempDir(), "snapshot.json")
	backup := &commands.BackupCmd{}
	stdout, stderr, code := runWithConfig(t, cfg, backup, nil, nil)
	if code != exitcode.Success || !strings.HasPrefix(stdout, cfg.BackupPath()) {
		t.Fatalf("backup: code %d, stdout %q, stderr %q", code, stdout, stderr)
	}

	dispatchBackup := &commands.BackupCmd{}
	fs := flag.NewFlagSet("backup", flag.ContinueOnError)
	dispatchBackup.RegisterFlags(fs)
	if err := fs.Parse([]string{"--out", out}); err != nil {
		t.Fatal(err)
	}
	if _, stderr, code := runWithConfig(t, cfg, dispatchBackup, nil, nil); code != exitcode.Success {
		t.Fatalf("backup --out: code %d (%s)", code, stderr)
	}
	if !strings.Contains(readFile(t, out), `"t001"`) {
		t.Errorf("snapshot does not contain the synced task")
	}

	fresh, _ := newVault(t, nil)
	stdout, stderr, code = runWithConfig(t, fresh, &commands.ImportCmd{}, nil, []string{out})
	if code != exitcode.Success {
		t.Fatalf("import: code %d (%s)", code, stderr)
	}
	if !strings.HasSuffix(stdout, "ok\n") {
		t.Errorf("import output %q", stdout)
	}
}

func TestImportCommand_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("not json"), 0644); err != nil {
		t.Fatal(err)
	}
	_, _, code := runCommand(t, &commands.ImportCmd{}, nil, []string{path}, false)
	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
}
