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
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-sharevault/pkg/bundle"
	"github.com/jeremyhahn/go-sharevault/pkg/sharecipher"
)

func (a *app) keygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a random 256-bit share encryption key",
		Long: `Generate a random 256-bit key for split and combine. The key is printed
as unpadded base64url text; keep it apart from the bundle payload.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := a.orchestrator(cmd)
			if err != nil {
				return err
			}
			key, err := orch.GenerateKey(cmd.Context())
			if err != nil {
				return err
			}
			defer key.Wipe()
			return a.printKey(cmd, key, nil)
		},
	}
	cmd.Flags().Bool("jwk", false, "include the key as a JSON Web Key")
	cmd.Flags().String("out", "", "write the key to a file (mode 0600) instead of stdout")
	return cmd
}

func (a *app) deriveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Derive a share encryption key from a password",
		Long: `Derive a 256-bit key from a password with the configured KDF. Without
--salt a random salt is generated; pass it back with --salt to derive the
same key again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var salt []byte
			if text, _ := cmd.Flags().GetString("salt"); text != "" {
				var err error
				if salt, err = base64.StdEncoding.DecodeString(text); err != nil {
					return usagef("--salt must be standard base64: %v", err)
				}
			}

			orch, err := a.orchestrator(cmd)
			if err != nil {
				return err
			}
			pw, err := readPassword(cmd, salt == nil)
			if err != nil {
				return err
			}
			defer pw.Clear()

			a.printVerbose(cmd, "Deriving key with %s", orch.Config().KDF.Algorithm)
			key, kdf, err := orch.DeriveKey(cmd.Context(), pw.Bytes(), salt)
			if err != nil {
				return err
			}
			defer key.Wipe()
			return a.printKey(cmd, key, kdf)
		},
	}
	cmd.Flags().String("salt", "", "salt from a previous derivation (standard base64)")
	cmd.Flags().Bool("jwk", false, "include the key as a JSON Web Key")
	cmd.Flags().String("out", "", "write the key to a file (mode 0600) instead of stdout")
	addPasswordFlags(cmd)
	return cmd
}

func (a *app) printKey(cmd *cobra.Command, key sharecipher.Key, kdf *bundle.KDF) error {
	out := &KeyOutput{Key: key.Encode(), KID: key.ID(), KDF: kdf}
	if withJWK, _ := cmd.Flags().GetBool("jwk"); withJWK {
		jwk, err := key.JWK("")
		if err != nil {
			return err
		}
		out.JWK = jwk
	}

	written, err := writeOutput(cmd, out.Key)
	if err != nil {
		return err
	}
	if written {
		path, _ := cmd.Flags().GetString("out")
		out.Key = ""
		return a.printer(cmd.OutOrStdout()).PrintSuccess(fmt.Sprintf("Key %s written to %s", out.KID, path))
	}
	return a.printer(cmd.OutOrStdout()).PrintKey(out)
}
