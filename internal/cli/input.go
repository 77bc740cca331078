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
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-sharevault/internal/config"
	"github.com/jeremyhahn/go-sharevault/internal/password"
	"github.com/jeremyhahn/go-sharevault/pkg/sharecipher"
)

// PasswordEnv is read when neither --password-file nor a prompt applies.
const PasswordEnv = config.EnvPrefix + "PASSWORD"

// KeyEnv supplies --key when the flag is absent.
const KeyEnv = config.EnvPrefix + "KEY"

// maxInputBytes bounds secrets and payloads read from files or stdin.
const maxInputBytes = 8 << 20

func addPasswordFlags(cmd *cobra.Command) {
	cmd.Flags().String("password-file", "", "read the password from the first line of a file")
}

func addKeyFlags(cmd *cobra.Command) {
	cmd.Flags().String("key", "", "encryption key (base64url, or "+KeyEnv+")")
	cmd.Flags().String("key-file", "", "read the encryption key from a file")
}

// readPassword resolves the password from --password-file, then
// SHAREVAULT_PASSWORD, then an interactive prompt on stdin. New passwords
// are prompted twice.
func readPassword(cmd *cobra.Command, confirm bool) (*password.Secret, error) {
	if path, _ := cmd.Flags().GetString("password-file"); path != "" {
		return password.FromFile(path)
	}
	if os.Getenv(PasswordEnv) != "" {
		return password.FromEnv(PasswordEnv)
	}

	var prompter *password.Prompter
	if f, ok := cmd.InOrStdin().(*os.File); ok {
		prompter = password.NewPrompter(f, cmd.ErrOrStderr())
	} else {
		prompter = password.NewReaderPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
	}
	if confirm {
		return prompter.ReadConfirmed("Password: ", "Confirm password: ")
	}
	return prompter.Read("Password: ")
}

// readKey returns the key given by --key, --key-file or SHAREVAULT_KEY, and
// false when none is set.
func readKey(cmd *cobra.Command) (sharecipher.Key, bool, error) {
	text, _ := cmd.Flags().GetString("key")
	if path, _ := cmd.Flags().GetString("key-file"); path != "" {
		if text != "" {
			return sharecipher.Key{}, false, usagef("--key and --key-file are mutually exclusive")
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return sharecipher.Key{}, false, fmt.Errorf("read key file: %w", err)
		}
		defer clear(data)
		text = string(data)
	}
	if text == "" {
		text = os.Getenv(KeyEnv)
	}
	if text == "" {
		return sharecipher.Key{}, false, nil
	}
	k, err := sharecipher.ParseKey(text)
	if err != nil {
		return sharecipher.Key{}, false, err
	}
	return k, true, nil
}

// readInput returns args[0], the contents of --in, or stdin when the
// argument is "-" or absent.
func readInput(cmd *cobra.Command, args []string, what string) (string, error) {
	path, _ := cmd.Flags().GetString("in")
	switch {
	case path != "" && len(args) > 0:
		return "", usagef("give the %s as an argument or with --in, not both", what)
	case path != "":
		data, err := readLimited(path)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	case len(args) > 0 && args[0] != "-":
		return args[0], nil
	}

	data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), maxInputBytes+1))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", what, err)
	}
	if len(data) > maxInputBytes {
		return "", fmt.Errorf("%s exceeds %d bytes", what, maxInputBytes)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", usagef("no %s given", what)
	}
	return text, nil
}

func readLimited(path string) ([]byte, error) {
	// #nosec G304 - path is given by the operator
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxInputBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxInputBytes {
		return nil, fmt.Errorf("%s exceeds %d bytes", path, maxInputBytes)
	}
	return bytes.TrimSpace(data), nil
}

// writeOutput writes text to --out when set and reports whether it did.
func writeOutput(cmd *cobra.Command, text string) (bool, error) {
	path, _ := cmd.Flags().GetString("out")
	if path == "" {
		return false, nil
	}
	if err := os.WriteFile(path, []byte(text+"\n"), 0600); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
