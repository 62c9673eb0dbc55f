package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/storecheck/rules"
	"github.com/liamcoop/storecheck/unlock"
)

// testEnv points the CLI at a temporary config and state file
type testEnv struct {
	dir    string
	config string
	state  string
}

func newTestEnv(t *testing.T, configYAML string) testEnv {
	t.Helper()
	dir := t.TempDir()
	env := testEnv{
		dir:    dir,
		config: filepath.Join(dir, "config.yaml"),
		state:  filepath.Join(dir, "state.db"),
	}
	require.NoError(t, os.WriteFile(env.config, []byte(configYAML), 0o600))
	return env
}

func (e testEnv) run(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{args[0], "-config", e.config, "-state", e.state}, args[1:]...)
	code := run(context.Background(), full, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func (e testEnv) setUnlocked(t *testing.T, unlocked bool) {
	t.Helper()
	store, err := unlock.NewSQLiteStore(e.state, unlock.DefaultKey)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.WriteFlag(context.Background(), unlocked))
}

func TestRunWithoutCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, exitError, run(context.Background(), nil, strings.NewReader(""), &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Usage:")

	stderr.Reset()
	assert.Equal(t, exitError, run(context.Background(), []string{"fetch"}, strings.NewReader(""), &stdout, &stderr))
	assert.Contains(t, stderr.String(), `unknown command "fetch"`)

	assert.Equal(t, exitOK, run(context.Background(), []string{"help"}, strings.NewReader(""), &stdout, &stderr))
}

func TestCheckSampleLocked(t *testing.T) {
	env := newTestEnv(t, "")

	code, out, _ := env.run(t, "", "check", "-sample", "-copy")
	require.Equal(t, exitOK, code)

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 11)
	assert.True(t, strings.HasPrefix(lines[0], "[FAIL] Early Access Compliance"), lines[0])
	assert.Equal(t, 7, strings.Count(out, "[LOCKED]"))
	assert.Contains(t, lines[10], "locked=7")
}

func TestCheckUnlockedFromState(t *testing.T) {
	env := newTestEnv(t, "")
	env.setUnlocked(t, true)

	code, out, _ := env.run(t, "", "check", "-sample", "-copy")
	require.Equal(t, exitOK, code)
	assert.NotContains(t, out, "[LOCKED]")
	assert.Contains(t, out, "locked=0")
}

func TestCheckStdinJSON(t *testing.T) {
	env := newTestEnv(t, "")

	code, out, stderr := env.run(t, "A short listing.", "check", "-file", "-", "-json")
	require.Equal(t, exitOK, code, stderr)

	var rep rules.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Len(t, rep.Results, 10)
	assert.Equal(t, 10, rep.Counts.Total())
}

func TestCheckInputErrors(t *testing.T) {
	env := newTestEnv(t, "")

	code, _, stderr := env.run(t, "", "check")
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, rules.ErrNoInput.Error())

	code, _, stderr = env.run(t, "", "check", "-url", "https://store.steampowered.com/app/1/")
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, rules.ErrReferenceOnly.Error())

	code, _, _ = env.run(t, "", "check", "-file", filepath.Join(env.dir, "missing.txt"))
	assert.Equal(t, exitError, code)
}

func TestCheckReferencePlaceholder(t *testing.T) {
	env := newTestEnv(t, "checker:\n  reference_policy: placeholder\n")

	code, out, _ := env.run(t, "", "check", "-url", "https://store.steampowered.com/app/1/", "-copy")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "pass=")
}

func TestCheckStrict(t *testing.T) {
	env := newTestEnv(t, "")

	// The sample is far below the minimum description length
	code, _, _ := env.run(t, "", "check", "-sample", "-copy", "-strict")
	assert.Equal(t, exitFindings, code)
}

func TestCheckWithRulesFile(t *testing.T) {
	dir := t.TempDir()
	rulesFile := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(rulesFile, []byte(`rules:
  - id: refund-policy
    name: Refund Policy Reference
    expression: lower.contains("refund")
    active: true
    fail_message: Mention the store refund policy
`), 0o600))
	env := newTestEnv(t, "rules:\n  file: "+rulesFile+"\n")

	code, out, stderr := env.run(t, "", "check", "-sample", "-copy")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, out, "[WARNING] Refund Policy Reference: Mention the store refund policy")
}

func TestLockAndStatus(t *testing.T) {
	env := newTestEnv(t, "")

	code, out, _ := env.run(t, "", "status")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "locked (7 premium rules gated)")
	assert.Contains(t, out, env.state)

	env.setUnlocked(t, true)
	_, out, _ = env.run(t, "", "status")
	assert.Contains(t, out, "unlocked")

	code, out, _ = env.run(t, "", "lock")
	require.Equal(t, exitOK, code)
	assert.Equal(t, "Premium rules locked.\n", out)

	_, out, _ = env.run(t, "", "status")
	assert.Contains(t, out, "Premium rules: locked")
}

func newPaddleEnv(t *testing.T, body string) testEnv {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	t.Setenv("PADDLE_API_KEY", "pdl_test_key")
	return newTestEnv(t, "purchase:\n  base_url: "+srv.URL+"\n  max_retries: 0\n")
}

func TestUnlockVerifiedPurchase(t *testing.T) {
	env := newPaddleEnv(t, `{"data":[{"id":"txn_1"}]}`)

	code, out, stderr := env.run(t, "", "unlock", "-email", "buyer@example.com")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, out, "Premium rules unlocked")

	_, out, _ = env.run(t, "", "check", "-sample", "-copy")
	assert.NotContains(t, out, "[LOCKED]")
}

func TestUnlockNoPurchase(t *testing.T) {
	env := newPaddleEnv(t, `{"data":[]}`)

	code, out, _ := env.run(t, "", "unlock", "-email", "nobody@example.com")
	assert.Equal(t, exitFindings, code)
	assert.Contains(t, out, "No purchase found for this email")

	_, out, _ = env.run(t, "", "status")
	assert.Contains(t, out, "Premium rules: locked")
}

func TestUnlockRequirements(t *testing.T) {
	t.Setenv("PADDLE_API_KEY", "")
	env := newTestEnv(t, "")

	code, _, stderr := env.run(t, "", "unlock")
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "-email is required")

	code, _, stderr = env.run(t, "", "unlock", "-email", "buyer@example.com")
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "PADDLE_API_KEY is not set")
}
