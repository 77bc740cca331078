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
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-sharevault/pkg/bundle"
	"github.com/jeremyhahn/go-sharevault/pkg/orchestrator"
	"github.com/jeremyhahn/go-sharevault/pkg/sharecipher"
)

// ErrVerificationFailed is returned by verify after printing a failed
// report.
var ErrVerificationFailed = errors.New("verification failed")

func (a *app) splitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split [secret|-]",
		Short: "Split a secret into an encrypted share bundle",
		Long: `Split a secret into n shares, any k of which recover it, encrypt every
share and print the bundle payload.

The shares are encrypted under --key, under a key derived from a password
when --password is given, or under a freshly generated key that is printed
with the payload. --save stores the bundle as a session; generated and
supplied keys are then wrapped by the configured custody provider.`,
		Example: `  sharevault split -k 3 -n 5 https://cdn.example.com/v/clip.mp4
  echo "$URL" | sharevault split --password --save -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := readInput(cmd, args, "secret")
			if err != nil {
				return err
			}
			withPassword, _ := cmd.Flags().GetBool("password")
			save, _ := cmd.Flags().GetBool("save")

			key, haveKey, err := readKey(cmd)
			if err != nil {
				return err
			}
			defer key.Wipe()
			if withPassword && haveKey {
				return usagef("--password cannot be combined with a key")
			}

			orch, err := a.orchestrator(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			out := &ProtectOutput{}
			var res *orchestrator.Result
			switch {
			case withPassword:
				pw, err := readPassword(cmd, true)
				if err != nil {
					return err
				}
				res, err = orch.ProtectWithPassword(ctx, secret, pw.Bytes())
				pw.Clear()
				if err != nil {
					return err
				}
			default:
				if !haveKey {
					if key, err = orch.GenerateKey(ctx); err != nil {
						return err
					}
					out.Key = key.Encode()
				}
				if res, err = orch.Protect(ctx, secret, key); err != nil {
					return err
				}
			}

			out.BundleID = res.Bundle.ID
			out.Threshold = res.Bundle.Threshold
			out.Total = res.Bundle.Total
			out.Prime = string(res.Bundle.Prime)
			out.Payload = res.Payload
			a.printVerbose(cmd, "Split into %d-of-%d shares over %s", out.Threshold, out.Total, out.Prime)

			if save {
				var sessionKey *sharecipher.Key
				if !withPassword {
					sessionKey = &key
				}
				sess, err := orch.SaveSession(ctx, res.Payload, sessionKey)
				if err != nil {
					return err
				}
				out.SessionID = sess.ID
			}

			written, err := writeOutput(cmd, res.Payload)
			if err != nil {
				return err
			}
			if written {
				out.Payload = ""
			}
			return a.printer(cmd.OutOrStdout()).PrintProtected(out)
		},
	}

	flags := cmd.Flags()
	flags.IntP("threshold", "k", 0, "shares required to recover (default from config)")
	flags.IntP("total", "n", 0, "shares to create (default from config)")
	flags.String("prime", "", "field prime id (p256, p384, m521, m1279, m4253, m9689; default sized to the secret)")
	flags.String("algorithm", "", "share cipher (auto, xchacha20-poly1305, aes256-gcm)")
	flags.Duration("ttl", 0, "reject shares older than this when recovering (0 disables)")
	flags.Bool("password", false, "derive the key from a password")
	flags.Bool("save", false, "store the bundle as a session")
	flags.String("in", "", "read the secret from a file")
	flags.String("out", "", "write the payload to a file (mode 0600)")
	addKeyFlags(cmd)
	addPasswordFlags(cmd)
	a.bind(flags, "threshold", "sharing.threshold")
	a.bind(flags, "total", "sharing.total")
	a.bind(flags, "prime", "sharing.prime")
	a.bind(flags, "algorithm", "cipher.algorithm")
	a.bind(flags, "ttl", "cipher.ttl")
	return cmd
}

// recoverOptions reads --shares.
func recoverOptions(cmd *cobra.Command) ([]orchestrator.RecoverOption, error) {
	indices, err := cmd.Flags().GetIntSlice("shares")
	if err != nil {
		return nil, err
	}
	if len(indices) == 0 {
		return nil, nil
	}
	return []orchestrator.RecoverOption{orchestrator.UseShares(indices...)}, nil
}

// recoverPayload decrypts payload with the key from flags, or with a
// password when the bundle was protected by one.
func (a *app) recoverPayload(cmd *cobra.Command, orch *orchestrator.Orchestrator, b *bundle.Bundle, payload string) (string, error) {
	opts, err := recoverOptions(cmd)
	if err != nil {
		return "", err
	}
	ctx := cmd.Context()

	if b.KDF != nil {
		pw, err := readPassword(cmd, false)
		if err != nil {
			return "", err
		}
		defer pw.Clear()
		return orch.RecoverWithPassword(ctx, payload, pw.Bytes(), opts...)
	}

	key, ok, err := readKey(cmd)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", usagef("bundle %s is not password protected: give --key, --key-file or %s", b.ID, KeyEnv)
	}
	defer key.Wipe()
	return orch.Recover(ctx, payload, key, opts...)
}

func (a *app) combineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "combine [payload|-]",
		Short: "Recover a secret from a bundle payload",
		Long: `Decrypt the shares of a bundle payload and reconstruct the secret. Password
protected bundles prompt for the password; other bundles need the key.
--shares restricts recovery to the listed share indices.`,
		Example: `  sharevault combine --key "$KEY" "$PAYLOAD"
  sharevault combine --in bundle.txt --shares 1,3,5`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readInput(cmd, args, "payload")
			if err != nil {
				return err
			}
			b, err := bundle.Parse(payload)
			if err != nil {
				return err
			}
			orch, err := a.orchestrator(cmd)
			if err != nil {
				return err
			}
			secret, err := a.recoverPayload(cmd, orch, b, payload)
			if err != nil {
				return err
			}
			return a.printer(cmd.OutOrStdout()).PrintSecret(b.ID, secret)
		},
	}
	cmd.Flags().IntSlice("shares", nil, "share indices to use, e.g. 1,3,5")
	cmd.Flags().String("in", "", "read the payload from a file")
	addKeyFlags(cmd)
	addPasswordFlags(cmd)
	return cmd
}

func (a *app) inspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect [payload|-]",
		Short: "Show the metadata of a bundle payload",
		Long:  `Parse and validate a bundle payload and print its metadata. No key is needed.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readInput(cmd, args, "payload")
			if err != nil {
				return err
			}
			b, err := bundle.Parse(payload)
			if err != nil {
				return err
			}
			return a.printer(cmd.OutOrStdout()).PrintBundle(b)
		},
	}
	cmd.Flags().String("in", "", "read the payload from a file")
	return cmd
}

func (a *app) verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [payload|-]",
		Short: "Check that every share opens and every k-subset recovers the secret",
		Long: `Open every share of a bundle and reconstruct from each k-subset of them.
With --expected each reconstruction is compared with the given secret;
otherwise subsets must agree with each other. Exits non-zero when any
share or subset fails.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readInput(cmd, args, "payload")
			if err != nil {
				return err
			}
			b, err := bundle.Parse(payload)
			if err != nil {
				return err
			}
			expected, _ := cmd.Flags().GetString("expected")

			orch, err := a.orchestrator(cmd)
			if err != nil {
				return err
			}

			var report *orchestrator.VerificationReport
			if b.KDF != nil {
				pw, err := readPassword(cmd, false)
				if err != nil {
					return err
				}
				report, err = orch.VerifyWithPassword(cmd.Context(), payload, pw.Bytes(), expected)
				pw.Clear()
				if err != nil {
					return err
				}
			} else {
				key, ok, err := readKey(cmd)
				if err != nil {
					return err
				}
				if !ok {
					return usagef("bundle %s is not password protected: give --key, --key-file or %s", b.ID, KeyEnv)
				}
				report, err = orch.Verify(cmd.Context(), payload, key, expected)
				key.Wipe()
				if err != nil {
					return err
				}
			}

			if err := a.printer(cmd.OutOrStdout()).PrintReport(report); err != nil {
				return err
			}
			if !report.OK() {
				return fmt.Errorf("%w: %d bad shares, %d failing subsets",
					ErrVerificationFailed, len(report.BadShares), len(report.Failures))
			}
			return nil
		},
	}
	cmd.Flags().String("expected", "", "secret every subset must reproduce")
	cmd.Flags().String("in", "", "read the payload from a file")
	addKeyFlags(cmd)
	addPasswordFlags(cmd)
	return cmd
}
