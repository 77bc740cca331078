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
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jeremyhahn/go-sharevault/pkg/bundle"
	"github.com/jeremyhahn/go-sharevault/pkg/errcode"
	"github.com/jeremyhahn/go-sharevault/pkg/orchestrator"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText  OutputFormat = "text"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatTable OutputFormat = "table"
)

// Printer handles formatted output
type Printer struct {
	format OutputFormat
	writer io.Writer
}

// NewPrinter creates a new Printer
func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{
		format: OutputFormat(format),
		writer: writer,
	}
}

func (p *Printer) unknownFormat() error {
	return fmt.Errorf("unknown output format: %s", p.format)
}

// KeyOutput is a generated or derived key.
type KeyOutput struct {
	Key string          `json:"key"`
	KID string          `json:"kid"`
	JWK json.RawMessage `json:"jwk,omitempty"`
	KDF *bundle.KDF     `json:"kdf,omitempty"`
}

// ProtectOutput is the result of split.
type ProtectOutput struct {
	BundleID  string `json:"bundle_id"`
	Threshold int    `json:"k"`
	Total     int    `json:"n"`
	Prime     string `json:"prime"`
	Payload   string `json:"payload"`
	Key       string `json:"key,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// PrintSuccess prints a success message
func (p *Printer) PrintSuccess(message string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]any{
			"status":  "success",
			"message": message,
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintln(p.writer, message)
		return nil
	default:
		return p.unknownFormat()
	}
}

// PrintError prints err with its taxonomy code. Unknown formats fall back
// to text so errors are never lost.
func (p *Printer) PrintError(err error) error {
	code := errcode.Of(err)
	if p.format == OutputFormatJSON {
		return p.printJSON(map[string]any{
			"status": "error",
			"code":   code,
			"error":  err.Error(),
		})
	}
	if code == errcode.Unknown {
		fmt.Fprintf(p.writer, "Error: %v\n", err)
	} else {
		fmt.Fprintf(p.writer, "Error [%s]: %v\n", code, err)
	}
	return nil
}

// PrintKey prints a key. Text output is the bare key so it can be
// captured by scripts.
func (p *Printer) PrintKey(out *KeyOutput) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(out)
	case OutputFormatTable:
		fmt.Fprintf(p.writer, "Key:  %s\n", out.Key)
		fmt.Fprintf(p.writer, "KID:  %s\n", out.KID)
		if out.KDF != nil {
			fmt.Fprintf(p.writer, "KDF:  %s\n", out.KDF.Algorithm)
			fmt.Fprintf(p.writer, "Salt: %s\n", base64.StdEncoding.EncodeToString(out.KDF.Salt))
		}
		return nil
	case OutputFormatText:
		fmt.Fprintln(p.writer, out.Key)
		return nil
	default:
		return p.unknownFormat()
	}
}

// PrintProtected prints the outcome of split.
func (p *Printer) PrintProtected(out *ProtectOutput) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(out)
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintf(p.writer, "Bundle:  %s (%d-of-%d, %s)\n", out.BundleID, out.Threshold, out.Total, out.Prime)
		if out.Key != "" {
			fmt.Fprintf(p.writer, "Key:     %s\n", out.Key)
		}
		if out.SessionID != "" {
			fmt.Fprintf(p.writer, "Session: %s\n", out.SessionID)
		}
		if out.Payload != "" {
			fmt.Fprintf(p.writer, "Payload: %s\n", out.Payload)
		}
		return nil
	default:
		return p.unknownFormat()
	}
}

// PrintSecret prints a recovered secret. Text output is the bare secret.
func (p *Printer) PrintSecret(bundleID, secret string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]any{
			"bundle_id": bundleID,
			"secret":    secret,
		})
	case OutputFormatTable:
		fmt.Fprintf(p.writer, "Bundle: %s\n", bundleID)
		fmt.Fprintf(p.writer, "Secret: %s\n", secret)
		return nil
	case OutputFormatText:
		fmt.Fprintln(p.writer, secret)
		return nil
	default:
		return p.unknownFormat()
	}
}

// PrintBundle prints bundle metadata without ciphertexts.
func (p *Printer) PrintBundle(b *bundle.Bundle) error {
	switch p.format {
	case OutputFormatJSON:
		info := map[string]any{
			"bundle_id":          b.ID,
			"version":            b.Version,
			"k":                  b.Threshold,
			"n":                  b.Total,
			"prime":              b.Prime,
			"shares":             b.Indices(),
			"password_protected": b.KDF != nil,
		}
		if b.KDF != nil {
			info["kdf"] = b.KDF.Algorithm
		}
		return p.printJSON(info)
	case OutputFormatTable:
		fmt.Fprintf(p.writer, "%-8s %-12s\n", "INDEX", "CIPHERTEXT")
		fmt.Fprintln(p.writer, strings.Repeat("-", 21))
		for _, e := range b.Entries {
			fmt.Fprintf(p.writer, "%-8d %-12d\n", e.Index, len(e.Ciphertext))
		}
		return nil
	case OutputFormatText:
		fmt.Fprintf(p.writer, "Bundle:    %s\n", b.ID)
		fmt.Fprintf(p.writer, "Version:   %d\n", b.Version)
		fmt.Fprintf(p.writer, "Threshold: %d-of-%d\n", b.Threshold, b.Total)
		fmt.Fprintf(p.writer, "Prime:     %s\n", b.Prime)
		fmt.Fprintf(p.writer, "Shares:    %s\n", joinInts(b.Indices()))
		if b.KDF != nil {
			fmt.Fprintf(p.writer, "Password:  yes (%s)\n", b.KDF.Algorithm)
		} else {
			fmt.Fprintln(p.writer, "Password:  no")
		}
		return nil
	default:
		return p.unknownFormat()
	}
}

// PrintReport prints a verification report.
func (p *Printer) PrintReport(r *orchestrator.VerificationReport) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(r)
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintf(p.writer, "Status:  %s\n", r.Status)
		fmt.Fprintf(p.writer, "Shares:  %d available, %d required\n", r.SharesAvailable, r.SharesRequired)
		subsets := fmt.Sprintf("%d tested", r.SubsetsTested)
		if r.Truncated {
			subsets += " (truncated)"
		}
		fmt.Fprintf(p.writer, "Subsets: %s\n", subsets)
		for _, bad := range r.BadShares {
			fmt.Fprintf(p.writer, "  share %d: %s (%s)\n", bad.Index, bad.Reason, bad.Code)
		}
		for _, f := range r.Failures {
			fmt.Fprintf(p.writer, "  subset %s: %s\n", joinInts(f.Shares), f.Reason)
		}
		return nil
	default:
		return p.unknownFormat()
	}
}

type sessionOutput struct {
	ID                string    `json:"id"`
	CreatedAt         time.Time `json:"created_at"`
	Threshold         int       `json:"k"`
	Total             int       `json:"n"`
	Prime             string    `json:"prime"`
	PasswordProtected bool      `json:"password_protected"`
	KeyProvider       string    `json:"key_provider,omitempty"`
	Payload           string    `json:"payload,omitempty"`
}

func newSessionOutput(s *orchestrator.Session, withPayload bool) sessionOutput {
	out := sessionOutput{
		ID:                s.ID,
		CreatedAt:         s.CreatedAt,
		Threshold:         s.Threshold,
		Total:             s.Total,
		Prime:             string(s.Prime),
		PasswordProtected: s.PasswordProtected(),
	}
	if s.Key != nil {
		out.KeyProvider = s.Key.Provider
	}
	if withPayload {
		out.Payload = s.Payload
	}
	return out
}

// PrintSessions prints stored sessions.
func (p *Printer) PrintSessions(sessions []*orchestrator.Session) error {
	switch p.format {
	case OutputFormatJSON:
		list := make([]sessionOutput, len(sessions))
		for i, s := range sessions {
			list[i] = newSessionOutput(s, false)
		}
		return p.printJSON(map[string]any{"sessions": list})
	case OutputFormatTable:
		if len(sessions) == 0 {
			fmt.Fprintln(p.writer, "No sessions found")
			return nil
		}
		fmt.Fprintf(p.writer, "%-36s %-20s %-6s %-6s %-12s\n", "ID", "CREATED", "K/N", "PRIME", "KEY")
		fmt.Fprintln(p.writer, strings.Repeat("-", 84))
		for _, s := range sessions {
			o := newSessionOutput(s, false)
			fmt.Fprintf(p.writer, "%-36s %-20s %-6s %-6s %-12s\n",
				o.ID, o.CreatedAt.Format(time.RFC3339), fmt.Sprintf("%d/%d", o.Threshold, o.Total), o.Prime, keyColumn(o))
		}
		return nil
	case OutputFormatText:
		if len(sessions) == 0 {
			fmt.Fprintln(p.writer, "No sessions found")
			return nil
		}
		fmt.Fprintln(p.writer, "Sessions:")
		for _, s := range sessions {
			o := newSessionOutput(s, false)
			fmt.Fprintf(p.writer, "  - %s (%d-of-%d, %s)\n", o.ID, o.Threshold, o.Total, keyColumn(o))
		}
		return nil
	default:
		return p.unknownFormat()
	}
}

// PrintSession prints one session including its payload.
func (p *Printer) PrintSession(s *orchestrator.Session) error {
	o := newSessionOutput(s, true)
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(o)
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintf(p.writer, "Session:   %s\n", o.ID)
		fmt.Fprintf(p.writer, "Created:   %s\n", o.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(p.writer, "Threshold: %d-of-%d\n", o.Threshold, o.Total)
		fmt.Fprintf(p.writer, "Prime:     %s\n", o.Prime)
		fmt.Fprintf(p.writer, "Key:       %s\n", keyColumn(o))
		fmt.Fprintf(p.writer, "Payload:   %s\n", o.Payload)
		return nil
	default:
		return p.unknownFormat()
	}
}

func keyColumn(o sessionOutput) string {
	switch {
	case o.PasswordProtected:
		return "password"
	case o.KeyProvider != "":
		return o.KeyProvider
	default:
		return "none"
	}
}

// printJSON prints data as indented JSON
func (p *Printer) printJSON(data any) error {
	encoder := json.NewEncoder(p.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ",")
}
