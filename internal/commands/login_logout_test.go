package commands_test

import (
	"context"
	"os"
	"strings"
	"testing"

	"gtasksync/internal/commands"
	"gtasksync/internal/config"
	"gtasksync/internal/exitcode"
	"gtasksync/internal/testutil"
)

const testOAuthClient = `{"installed":{"client_id":"test","client_secret":"test","redirect_uris":["http://localhost"]}}`

func writeCredentials(t *testing.T, cfg *config.Config, token string) {
	t.Helper()
	if err := os.WriteFile(cfg.OAuthClientPath(), []byte(testOAuthClient), 0600); err != nil {
		t.Fatal(err)
	}
	if token == "" {
		return
	}
	if err := os.WriteFile(cfg.TokenPath(), []byte(token), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestLoginCommand_NoOAuthClient(t *testing.T) {
	cfg := &config.Config{Dir: t.TempDir()}

	stdout, stderr, code := runWithConfig(t, cfg, &commands.LoginCmd{}, nil, nil)

	if code != exitcode.AuthError {
		t.Errorf("expected exit code %d, got %d", exitcode.AuthError, code)
	}
	if stdout != "" {
		t.Errorf("expected no stdout, got %q", stdout)
	}
	if !strings.Contains(stderr, "oauth_client.json not found in "+cfg.Dir) {
		t.Errorf("expected missing client message, got %q", stderr)
	}
}

// A token that cannot be refreshed must not count as a login, otherwise
// every later sync fails with an auth error.
func TestLoginCommand_UnusableTokenStartsNewFlow(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"corrupt", `{not json`},
		{"no refresh token", `{"access_token":"test","token_type":"Bearer","expiry":"2020-01-01T00:00:00Z"}`},
		{"access token only", `{"access_token":"expired","token_type":"Bearer"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Dir: t.TempDir()}
			writeCredentials(t, cfg, tt.token)

			// Cancelled so the flow gives up instead of waiting for a browser.
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			var stdout, stderr strings.Builder
			code := (&commands.LoginCmd{}).Run(ctx, cfg, nil, nil, &stdout, &stderr)

			if stdout.String() == "already logged in\n" {
				t.Fatal("unusable token reported as logged in")
			}
			if code != exitcode.AuthError {
				t.Errorf("expected exit code %d, got %d", exitcode.AuthError, code)
			}
			if !strings.Contains(stderr.String(), "Open this URL") {
				t.Errorf("expected the consent URL, got %q", stderr.String())
			}
		})
	}
}

func TestLogoutCommand_RemovesOnlyToken(t *testing.T) {
	cfg := &config.Config{Dir: t.TempDir()}
	writeCredentials(t, cfg, `{"access_token":"test","refresh_token":"test"}`)

	stdout, stderr, code := runWithConfig(t, cfg, &commands.LogoutCmd{}, nil, nil)

	if code != exitcode.Success || stderr != "" {
		t.Fatalf("code %d, stderr %q", code, stderr)
	}
	if stdout != "ok\n" {
		t.Errorf("expected 'ok\\n', got %q", stdout)
	}
	if cfg.HasToken() {
		t.Error("token.json should have been deleted")
	}
	if !cfg.HasOAuthClient() {
		t.Error("oauth_client.json should be kept")
	}
}

func TestLogoutCommand_NotLoggedIn(t *testing.T) {
	tests := []struct {
		name       string
		quiet      bool
		wantStdout string
	}{
		{"normal", false, "not logged in\n"},
		{"quiet", true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, stderr, code := runCommand(t, &commands.LogoutCmd{}, nil, nil, tt.quiet)
			if code != exitcode.Success || stderr != "" {
				t.Errorf("code %d, stderr %q", code, stderr)
			}
			if stdout != tt.wantStdout {
				t.Errorf("expected %q, got %q", tt.wantStdout, stdout)
			}
		})
	}
}

// Logging out and back in resumes from the cache: documents synced before
// are not created a second time.
func TestLogoutCommand_SyncResumesAfterLogin(t *testing.T) {
	cfg, _ := newVault(t, map[string]string{"a.md": "- [ ] Buy milk #gtask\n"})
	cfg.Quiet = true
	writeCredentials(t, cfg, `{"refresh_token":"r"}`)
	svc := testutil.NewFakeService()

	first := &commands.SyncCmd{}
	first.SetDoc("a.md")
	if _, stderr, code := runWithConfig(t, cfg, first, svc, nil); code != exitcode.Success {
		t.Fatalf("first sync: code %d (%s)", code, stderr)
	}

	if _, _, code := runWithConfig(t, cfg, &commands.LogoutCmd{}, nil, nil); code != exitcode.Success {
		t.Fatalf("logout: code %d", code)
	}
	if _, err := os.Stat(cfg.CachePath()); err != nil {
		t.Fatalf("cache should survive logout: %v", err)
	}
	writeCredentials(t, cfg, `{"refresh_token":"r2"}`)

	cfg.Quiet = false
	stdout, stderr, code := runWithConfig(t, cfg, &commands.SyncCmd{}, svc, nil)
	if code != exitcode.Success {
		t.Fatalf("sync after login: code %d (%s)", code, stderr)
	}
	if want := "vault: 1 document, 0 created, 0 updated, 0 deleted, 0 pulled\n"; stdout != want {
		t.Errorf("expected %q, got %q", want, stdout)
	}
	if n := svc.Calls(testutil.MethodCreateTask); n != 1 {
		t.Errorf("CreateTask called %d times, want 1", n)
	}
}
