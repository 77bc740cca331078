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

package orchestrator

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/jeremyhahn/go-sharevault/pkg/audit"
	"github.com/jeremyhahn/go-sharevault/pkg/bundle"
	"github.com/jeremyhahn/go-sharevault/pkg/errcode"
	"github.com/jeremyhahn/go-sharevault/pkg/logging"
	"github.com/jeremyhahn/go-sharevault/pkg/metrics"
	"github.com/jeremyhahn/go-sharevault/pkg/sharecipher"
	"github.com/jeremyhahn/go-sharevault/pkg/threshold"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// ShareFailure is a share that could not be decrypted or decoded.
type ShareFailure struct {
	Index  int          `json:"index"`
	Code   errcode.Code `json:"code"`
	Reason string       `json:"reason"`
}

// SubsetFailure is a k-subset that did not reproduce the expected secret.
type SubsetFailure struct {
	Shares []int        `json:"shares"`
	Code   errcode.Code `json:"code,omitempty"`
	Reason string       `json:"reason"`
}

// VerificationReport is the outcome of Verify.
type VerificationReport struct {
	Status          string          `json:"status"`
	BundleID        string          `json:"bundle_id,omitempty"`
	SharesAvailable int             `json:"shares_available"`
	SharesRequired  int             `json:"shares_required"`
	SubsetsTested   int             `json:"subsets_tested"`
	Truncated       bool            `json:"truncated"`
	Match           bool            `json:"match"`
	BadShares       []ShareFailure  `json:"bad_shares,omitempty"`
	Failures        []SubsetFailure `json:"failures,omitempty"`
}

// OK reports whether every share opened and every tested subset matched.
func (r *VerificationReport) OK() bool {
	return r.Status == StatusSuccess
}

// Verify opens every share of payload and reconstructs from each k-subset
// of the shares that opened, in lexicographic order and up to
// MaxVerifySubsets subsets. Each reconstruction is compared with expected,
// or with the first reconstruction when expected is empty. Problems with
// individual shares or subsets are reported, not returned; the error is
// reserved for a payload or key that cannot be used at all.
func (o *Orchestrator) Verify(ctx context.Context, payload string, key sharecipher.Key, expected string) (report *VerificationReport, err error) {
	defer func(start time.Time) { metrics.Observe(metrics.OpVerify, start, err) }(time.Now())

	b, err := parsePayload(payload)
	if err == nil {
		report, err = o.verify(ctx, b, key, expected)
	}
	o.record(ctx, o.verifyEvent(err, b, report))
	return report, err
}

// VerifyWithPassword is Verify for a bundle produced by
// ProtectWithPassword. Attempts share the RecoverWithPassword limit.
func (o *Orchestrator) VerifyWithPassword(ctx context.Context, payload string, password []byte, expected string) (report *VerificationReport, err error) {
	defer func(start time.Time) { metrics.Observe(metrics.OpVerify, start, err) }(time.Now())

	b, err := parsePayload(payload)
	if err == nil {
		var key sharecipher.Key
		var lk string
		key, lk, err = o.passwordKey(ctx, b, password)
		if err == nil {
			report, err = o.verify(ctx, b, key, expected)
			key.Wipe()
			if err == nil && len(report.BadShares) < len(b.Entries) {
				o.limiter.Reset(lk)
			}
		}
	}
	o.record(ctx, o.verifyEvent(err, b, report))
	return report, err
}

func (o *Orchestrator) verifyEvent(err error, b *bundle.Bundle, report *VerificationReport) *audit.Event {
	ev := o.bundleEvent(audit.EventVerify, err, b, nil)
	if report != nil && !report.OK() {
		ev.Outcome = audit.OutcomeFailure
		ev.Message = "verification failed"
	}
	return ev
}

func (o *Orchestrator) verify(ctx context.Context, b *bundle.Bundle, key sharecipher.Key, expected string) (*VerificationReport, error) {
	tcfg, err := b.ThresholdConfig()
	if err != nil {
		return nil, stageErr(StageParse, 0, err)
	}
	rec, err := threshold.NewReconstructor(tcfg)
	if err != nil {
		return nil, stageErr(StageParse, 0, err)
	}
	c, err := sharecipher.New(key, o.cipherConfig())
	if err != nil {
		return nil, stageErr(StageDecrypt, 0, err)
	}
	codec, err := threshold.NewCodec(tcfg.Field)
	if err != nil {
		return nil, stageErr(StageDecode, 0, err)
	}

	report := &VerificationReport{
		BundleID:        b.ID,
		SharesAvailable: len(b.Entries),
		SharesRequired:  b.Threshold,
	}

	var shares []threshold.Share
	defer func() { wipeShares(shares) }()
	for _, e := range b.Entries {
		s, err := openShare(ctx, c, codec, e)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			report.BadShares = append(report.BadShares, ShareFailure{
				Index:  e.Index,
				Code:   errcode.Of(err),
				Reason: err.Error(),
			})
			continue
		}
		shares = append(shares, s)
	}

	var reference []byte
	if expected != "" {
		reference = []byte(expected)
	}
	defer func() { clear(reference) }()

	combinations(len(shares), b.Threshold, func(pos []int) bool {
		if ctx.Err() != nil {
			return false
		}
		if report.SubsetsTested == o.cfg.MaxVerifySubsets {
			report.Truncated = true
			return false
		}
		report.SubsetsTested++

		subset := make([]threshold.Share, len(pos))
		for i, p := range pos {
			subset[i] = shares[p]
		}
		got, err := rec.ReconstructBytes(subset)
		if err != nil {
			report.Failures = append(report.Failures, SubsetFailure{
				Shares: threshold.Indices(subset),
				Code:   errcode.Of(err),
				Reason: err.Error(),
			})
			return true
		}
		defer clear(got)
		if reference == nil {
			reference = append([]byte(nil), got...)
			return true
		}
		if subtle.ConstantTimeCompare(got, reference) != 1 {
			report.Failures = append(report.Failures, SubsetFailure{
				Shares: threshold.Indices(subset),
				Reason: "reconstructed secret differs",
			})
		}
		return true
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report.Match = report.SubsetsTested > 0 && len(report.Failures) == 0
	report.Status = StatusFailed
	if report.Match && len(report.BadShares) == 0 {
		report.Status = StatusSuccess
	}

	o.log.InfoContext(ctx, "bundle verified",
		logging.String("bundle_id", b.ID),
		logging.String("status", report.Status),
		logging.Int("subsets", report.SubsetsTested),
		logging.Int("bad_shares", len(report.BadShares)),
		logging.Int("failures", len(report.Failures)))
	return report, nil
}

// combinations calls fn with every k-element subset of [0, n) in
// lexicographic order until fn returns false. fn must not retain pos.
func combinations(n, k int, fn func(pos []int) bool) {
	if k < 1 || k > n {
		return
	}
	pos := make([]int, k)
	for i := range pos {
		pos[i] = i
	}
	for {
		if !fn(pos) {
			return
		}
		i := k - 1
		for i >= 0 && pos[i] == n-k+i {
			i--
		}
		if i < 0 {
			return
		}
		pos[i]++
		for j := i + 1; j < k; j++ {
			pos[j] = pos[j-1] + 1
		}
	}
}
