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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-sharevault/pkg/orchestrator"
)

func (a *app) sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage stored sessions",
		Long: `Sessions are bundles saved with split --save in the configured storage
backend. A session saved with a key keeps it wrapped by the custody
provider; password sessions keep no key.`,
	}
	cmd.AddCommand(
		a.sessionListCmd(),
		a.sessionShowCmd(),
		a.sessionDeleteCmd(),
		a.sessionRecoverCmd(),
	)
	return cmd
}

func (a *app) sessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := a.orchestrator(cmd)
			if err != nil {
				return err
			}
			ids, err := orch.ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			sessions := make([]*orchestrator.Session, 0, len(ids))
			for _, id := range ids {
				s, err := orch.LoadSession(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("session %s: %w", id, err)
				}
				sessions = append(sessions, s)
			}
			return a.printer(cmd.OutOrStdout()).PrintSessions(sessions)
		},
	}
}

func (a *app) sessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a session and its payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := a.orchestrator(cmd)
			if err != nil {
				return err
			}
			s, err := orch.LoadSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printer(cmd.OutOrStdout()).PrintSession(s)
		},
	}
}

func (a *app) sessionDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := a.orchestrator(cmd)
			if err != nil {
				return err
			}
			if err := orch.DeleteSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			return a.printer(cmd.OutOrStdout()).PrintSuccess(fmt.Sprintf("Deleted session %s", args[0]))
		},
	}
}

func (a *app) sessionRecoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recover <id>",
		Short: "Recover the secret of a session",
		Long: `Recover a session secret. Sessions with a wrapped key are unwrapped by the
custody provider; password sessions prompt for the password.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := a.orchestrator(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			s, err := orch.LoadSession(ctx, args[0])
			if err != nil {
				return err
			}
			opts, err := recoverOptions(cmd)
			if err != nil {
				return err
			}

			var secret string
			if s.PasswordProtected() {
				pw, err := readPassword(cmd, false)
				if err != nil {
					return err
				}
				secret, err = orch.RecoverWithPassword(ctx, s.Payload, pw.Bytes(), opts...)
				pw.Clear()
				if err != nil {
					return err
				}
			} else if secret, err = orch.RecoverSession(ctx, s.ID, opts...); err != nil {
				return err
			}
			return a.printer(cmd.OutOrStdout()).PrintSecret(s.ID, secret)
		},
	}
	cmd.Flags().IntSlice("shares", nil, "share indices to use, e.g. 1,3,5")
	addPasswordFlags(cmd)
	return cmd
}
