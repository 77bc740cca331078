// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-sharevault.
//
// go-sharevault is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-sharevault/internal/config"
	"github.com/jeremyhahn/go-sharevault/pkg/errcode"
	"github.com/jeremyhahn/go-sharevault/pkg/sharecipher"
)

const testURL = "https://cdn.example.com/media/clip-0042.mp4"

type cliEnv struct {
	dir    string
	config string
}

type result struct {
	stdout string
	stderr string
	code   int
}

// newCLIEnv writes a config with cheap KDF costs, file storage and
// passphrase custody, and clears variables that would leak into it.
func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	for _, name := range []string{
		PasswordEnv, KeyEnv,
		config.EnvPrefix + "OUTPUT", config.EnvPrefix + "VERBOSE",
		config.EnvPrefix + "STORAGE_BACKEND", config.EnvPrefix + "STORAGE_PATH",
		config.EnvPrefix + "THRESHOLD", config.EnvPrefix + "TOTAL",
		config.EnvPrefix + "CUSTODY_PROVIDER", config.EnvPrefix + "CUSTODY_PASSPHRASE",
	} {
		t.Setenv(name, "")
	}

	dir := t.TempDir()
	cfg := `
cipher:
  kdf:
    algorithm: argon2id
    time: 1
    memory: 8192
    threads: 1
storage:
  backend: file
  path: ` + filepath.Join(dir, "sessions") + `
custody:
  provider: passphrase
  settings:
    passphrase: custody secret
    kdf: pbkdf2-sha256
audit:
  sink: none
`
	path := filepath.Join(dir, "sharevault.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0600))
	return &cliEnv{dir: dir, config: path}
}

func (e *cliEnv) run(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	root, a := newRoot()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", e.config}, args...))
	code := a.execute(root)
	return result{stdout: stdout.String(), stderr: stderr.String(), code: code}
}

func (e *cliEnv) ok(t *testing.T, args ...string) string {
	t.Helper()
	res := e.run(t, "", args...)
	require.Equal(t, 0, res.code, "stderr: %s", res.stderr)
	return res.stdout
}

func decode[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func (e *cliEnv) key(t *testing.T) string {
	t.Helper()
	return strings.TrimSpace(e.ok(t, "keygen"))
}

func TestVersion(t *testing.T) {
	e := newCLIEnv(t)
	out := decode[map[string]string](t, e.ok(t, "version", "-o", "json"))
	assert.Equal(t, Version, out["version"])
	assert.NotEmpty(t, out["go_version"])

	assert.Contains(t, e.ok(t, "version"), "sharevault version")
}

func TestKeygen(t *testing.T) {
	e := newCLIEnv(t)

	text := e.key(t)
	k, err := sharecipher.ParseKey(text)
	require.NoError(t, err)
	assert.False(t, k.IsZero())

	out := decode[KeyOutput](t, e.ok(t, "keygen", "--jwk", "-o", "json"))
	assert.NotEqual(t, text, out.Key)
	var jwk map[string]string
	require.NoError(t, json.Unmarshal(out.JWK, &jwk))
	assert.Equal(t, "oct", jwk["kty"])
	assert.Equal(t, out.KID, jwk["kid"])
	assert.Len(t, out.KID, 16)

	path := filepath.Join(e.dir, "share.key")
	assert.Contains(t, e.ok(t, "keygen", "--out", path), "written to "+path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	_, err = sharecipher.ParseKey(string(data))
	assert.NoError(t, err)
}

func TestDerive(t *testing.T) {
	e := newCLIEnv(t)
	t.Setenv(PasswordEnv, "correct horse battery staple")

	first := decode[KeyOutput](t, e.ok(t, "derive", "-o", "json"))
	require.NotNil(t, first.KDF)
	assert.Equal(t, sharecipher.KDFArgon2id, first.KDF.Algorithm)
	salt := base64.StdEncoding.EncodeToString(first.KDF.Salt)

	again := decode[KeyOutput](t, e.ok(t, "derive", "-o", "json", "--salt", salt))
	assert.Equal(t, first.Key, again.Key)

	fresh := decode[KeyOutput](t, e.ok(t, "derive", "-o", "json"))
	assert.NotEqual(t, first.Key, fresh.Key)

	res := e.run(t, "", "derive", "--salt", "%%%")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "--salt")
}

func TestDerive_Prompt(t *testing.T) {
	e := newCLIEnv(t)

	res := e.run(t, "hunter22\nhunter22\n", "derive")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stderr, "Confirm password: ")

	res = e.run(t, "hunter22\nhunter23\n", "derive")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "passwords do not match")
}

func TestSplitCombine_Key(t *testing.T) {
	e := newCLIEnv(t)
	key := e.key(t)

	out := decode[ProtectOutput](t, e.ok(t, "split", "-k", "3", "-n", "5", "--key", key, "-o", "json", testURL))
	assert.Equal(t, 3, out.Threshold)
	assert.Equal(t, 5, out.Total)
	assert.Empty(t, out.Key, "supplied keys are not echoed")
	require.NotEmpty(t, out.Payload)

	info := decode[map[string]any](t, e.ok(t, "inspect", "-o", "json", out.Payload))
	assert.Equal(t, out.BundleID, info["bundle_id"])
	assert.Equal(t, []any{1.0, 2.0, 3.0, 4.0, 5.0}, info["shares"])
	assert.Equal(t, false, info["password_protected"])

	tests := []struct {
		name   string
		shares string
		code   errcode.Code
	}{
		{"all shares", "", ""},
		{"threshold subset", "1,3,5", ""},
		{"other subset", "2,4,5", ""},
		{"too few", "1,2", errcode.InsufficientShares},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := []string{"combine", "--key", key, out.Payload}
			if tt.shares != "" {
				args = append(args, "--shares", tt.shares)
			}
			res := e.run(t, "", args...)
			if tt.code == "" {
				require.Equal(t, 0, res.code, res.stderr)
				assert.Equal(t, testURL+"\n", res.stdout)
				return
			}
			assert.Equal(t, 1, res.code)
			assert.Contains(t, res.stderr, string(tt.code))
		})
	}

	res := e.run(t, "", "combine", "--key", e.key(t), out.Payload)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, string(errcode.AuthenticationFailure))
}

func TestSplit_GeneratedKey(t *testing.T) {
	e := newCLIEnv(t)

	out := decode[ProtectOutput](t, e.ok(t, "split", "-o", "json", testURL))
	require.NotEmpty(t, out.Key)
	assert.Equal(t, 2, out.Threshold)
	assert.Equal(t, 3, out.Total)

	t.Setenv(KeyEnv, out.Key)
	assert.Equal(t, testURL+"\n", e.ok(t, "combine", out.Payload))
}

func TestSplit_StdinAndFiles(t *testing.T) {
	e := newCLIEnv(t)
	key := e.key(t)
	keyFile := filepath.Join(e.dir, "k")
	require.NoError(t, os.WriteFile(keyFile, []byte(key+"\n"), 0600))
	payloadFile := filepath.Join(e.dir, "bundle.txt")

	res := e.run(t, testURL+"\n", "split", "--key-file", keyFile, "--out", payloadFile)
	require.Equal(t, 0, res.code, res.stderr)
	assert.NotContains(t, res.stdout, "Payload:")

	info, err := os.Stat(payloadFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	assert.Equal(t, testURL+"\n", e.ok(t, "combine", "--key-file", keyFile, "--in", payloadFile))

	res = e.run(t, "", "combine", "--key", key, "--key-file", keyFile, "--in", payloadFile)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "mutually exclusive")
}

func TestSplitCombine_Password(t *testing.T) {
	e := newCLIEnv(t)
	t.Setenv(PasswordEnv, "correct horse battery staple")

	out := decode[ProtectOutput](t, e.ok(t, "split", "--password", "-o", "json", testURL))
	assert.Empty(t, out.Key)

	info := decode[map[string]any](t, e.ok(t, "inspect", "-o", "json", out.Payload))
	assert.Equal(t, true, info["password_protected"])
	assert.Equal(t, "argon2id", info["kdf"])

	assert.Equal(t, testURL+"\n", e.ok(t, "combine", out.Payload))

	t.Setenv(PasswordEnv, "")
	wrong := filepath.Join(e.dir, "wrong")
	require.NoError(t, os.WriteFile(wrong, []byte("not it\n"), 0600))
	res := e.run(t, "", "combine", "--password-file", wrong, out.Payload)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, string(errcode.AuthenticationFailure))

	res = e.run(t, "", "split", "--password", "--key", e.key(t), testURL)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "--password cannot be combined")
}

func TestVerify(t *testing.T) {
	e := newCLIEnv(t)
	key := e.key(t)
	out := decode[ProtectOutput](t, e.ok(t, "split", "-k", "2", "-n", "4", "--key", key, "-o", "json", testURL))

	text := e.ok(t, "verify", "--key", key, "--expected", testURL, out.Payload)
	assert.Contains(t, text, "Status:  success")
	assert.Contains(t, text, "Subsets: 6 tested")

	res := e.run(t, "", "verify", "--key", key, "--expected", "https://cdn.example.com/other.mp4", "-o", "json", out.Payload)
	assert.Equal(t, 1, res.code)
	report := decode[map[string]any](t, res.stdout)
	assert.Equal(t, "failed", report["status"])
	assert.Contains(t, res.stderr, ErrVerificationFailed.Error())
}

func TestSession_KeyLifecycle(t *testing.T) {
	e := newCLIEnv(t)

	out := decode[ProtectOutput](t, e.ok(t, "split", "--save", "-o", "json", testURL))
	require.NotEmpty(t, out.SessionID)

	list := decode[struct {
		Sessions []map[string]any `json:"sessions"`
	}](t, e.ok(t, "session", "list", "-o", "json"))
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, out.SessionID, list.Sessions[0]["id"])
	assert.Equal(t, "passphrase", list.Sessions[0]["key_provider"])
	assert.NotContains(t, list.Sessions[0], "payload")

	assert.Contains(t, e.ok(t, "session", "list", "-o", "table"), out.SessionID)

	show := decode[map[string]any](t, e.ok(t, "session", "show", "-o", "json", out.SessionID))
	assert.Equal(t, out.Payload, show["payload"])

	assert.Equal(t, testURL+"\n", e.ok(t, "session", "recover", out.SessionID))
	assert.Equal(t, testURL+"\n", e.ok(t, "session", "recover", "--shares", "1,3", out.SessionID))

	assert.Contains(t, e.ok(t, "session", "delete", out.SessionID), "Deleted session")
	assert.Contains(t, e.ok(t, "session", "list"), "No sessions found")

	res := e.run(t, "", "session", "show", out.SessionID)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, string(errcode.NotFound))
}

func TestSession_Password(t *testing.T) {
	e := newCLIEnv(t)
	t.Setenv(PasswordEnv, "correct horse battery staple")

	out := decode[ProtectOutput](t, e.ok(t, "split", "--password", "--save", "-o", "json", testURL))
	require.NotEmpty(t, out.SessionID)

	show := decode[map[string]any](t, e.ok(t, "session", "show", "-o", "json", out.SessionID))
	assert.Equal(t, true, show["password_protected"])
	assert.NotContains(t, show, "key_provider")

	assert.Equal(t, testURL+"\n", e.ok(t, "session", "recover", out.SessionID))
}

func TestStorageFlagOverridesConfig(t *testing.T) {
	e := newCLIEnv(t)

	out := decode[ProtectOutput](t, e.ok(t, "--storage", "memory", "split", "--save", "-o", "json", testURL))
	require.NotEmpty(t, out.SessionID)

	// The file backend from the config never saw the session.
	assert.Contains(t, e.ok(t, "session", "list"), "No sessions found")
}

func TestErrors(t *testing.T) {
	e := newCLIEnv(t)
	key := e.key(t)
	payload := decode[ProtectOutput](t, e.ok(t, "split", "--key", key, "-o", "json", testURL)).Payload

	tests := []struct {
		name  string
		stdin string
		args  []string
		want  string
	}{
		{"combine without key", "", []string{"combine", payload}, "give --key"},
		{"malformed payload", "", []string{"inspect", "not-a-bundle"}, string(errcode.MalformedBundle)},
		{"empty stdin", "", []string{"inspect"}, "no payload given"},
		{"bad key text", "", []string{"combine", "--key", "short", payload}, "invalid key"},
		{"invalid url", "", []string{"split", "--key", key, "ftp://example.com/file.mp4"}, "url"},
		{"bad threshold", "", []string{"split", "-k", "4", "-n", "3", "--key", key, testURL}, "threshold"},
		{"unknown session", "", []string{"session", "recover", "00000000-0000-4000-8000-000000000000"}, string(errcode.NotFound)},
		{"bad session id", "", []string{"session", "show", "../../etc"}, string(errcode.InvalidInput)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := e.run(t, tt.stdin, tt.args...)
			assert.Equal(t, 1, res.code)
			assert.Contains(t, strings.ToLower(res.stderr), strings.ToLower(tt.want))
		})
	}
}

func TestErrors_JSON(t *testing.T) {
	e := newCLIEnv(t)

	res := e.run(t, "", "inspect", "-o", "json", "not-a-bundle")
	assert.Equal(t, 1, res.code)
	out := decode[map[string]string](t, res.stderr)
	assert.Equal(t, "error", out["status"])
	assert.Equal(t, string(errcode.MalformedBundle), out["code"])
}
