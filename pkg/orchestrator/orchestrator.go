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

// Package orchestrator runs the protect and recover pipelines: a secret is
// split into threshold shares, each share is encrypted, and the result is
// serialized into a single payload. Sessions persist payloads together with
// an optionally custody-wrapped key.
package orchestrator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-sharevault/pkg/audit"
	"github.com/jeremyhahn/go-sharevault/pkg/bundle"
	"github.com/jeremyhahn/go-sharevault/pkg/custody"
	"github.com/jeremyhahn/go-sharevault/pkg/field"
	"github.com/jeremyhahn/go-sharevault/pkg/logging"
	"github.com/jeremyhahn/go-sharevault/pkg/metrics"
	"github.com/jeremyhahn/go-sharevault/pkg/ratelimit"
	"github.com/jeremyhahn/go-sharevault/pkg/sharecipher"
	"github.com/jeremyhahn/go-sharevault/pkg/storage"
	"github.com/jeremyhahn/go-sharevault/pkg/threshold"
)

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	cfg        Config
	store      storage.Backend
	log        logging.Logger
	audit      audit.Recorder
	custody    custody.Wrapper
	limiter    *ratelimit.Limiter
	ownLimiter bool
	rand       io.Reader
	now        func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStorage sets the session backend. Session operations fail with
// ErrStorageRequired without one.
func WithStorage(s storage.Backend) Option {
	return func(o *Orchestrator) { o.store = s }
}

func WithLogger(l logging.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

func WithAudit(r audit.Recorder) Option {
	return func(o *Orchestrator) { o.audit = r }
}

// WithCustody sets the provider used to wrap session keys.
func WithCustody(w custody.Wrapper) Option {
	return func(o *Orchestrator) { o.custody = w }
}

// WithLimiter replaces the password attempt limiter built from the config.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(o *Orchestrator) { o.limiter = l }
}

// WithRandom sets the source for polynomial coefficients, nonces, salts and
// keys.
func WithRandom(r io.Reader) Option {
	return func(o *Orchestrator) { o.rand = r }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New returns an Orchestrator. A nil cfg selects DefaultConfig.
func New(cfg *Config, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{cfg: *cfg}
	for _, opt := range opts {
		opt(o)
	}
	if o.cfg.MaxVerifySubsets == 0 {
		o.cfg.MaxVerifySubsets = DefaultMaxVerifySubsets
	}
	if o.cfg.KDF == nil {
		o.cfg.KDF = sharecipher.DefaultKDFParams()
	}
	if len(o.cfg.MediaExtensions) == 0 {
		o.cfg.MediaExtensions = DefaultMediaExtensions()
	}
	if o.log == nil {
		o.log = logging.NewNop()
	}
	if o.audit == nil {
		o.audit = audit.Nop{}
	}
	if o.rand == nil {
		o.rand = rand.Reader
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.limiter == nil && o.cfg.PasswordAttemptsPerMinute > 0 {
		o.limiter = ratelimit.New(&ratelimit.Config{
			Enabled:           true,
			RequestsPerMinute: o.cfg.PasswordAttemptsPerMinute,
			Burst:             o.cfg.PasswordAttemptsPerMinute,
		})
		o.ownLimiter = true
	}
	return o, nil
}

// Config returns a copy of the effective configuration.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// Close releases resources owned by the Orchestrator. Injected storage and
// custody providers are left to the caller.
func (o *Orchestrator) Close() error {
	if o.ownLimiter {
		o.limiter.Stop()
	}
	return nil
}

// Result is the output of a protect run.
type Result struct {
	Bundle  *bundle.Bundle
	Payload string
}

// Protect splits secret into the configured k-of-n shares, encrypts each
// share under key and serializes the bundle.
func (o *Orchestrator) Protect(ctx context.Context, secret string, key sharecipher.Key) (res *Result, err error) {
	defer func(start time.Time) { metrics.Observe(metrics.OpProtect, start, err) }(time.Now())

	res, err = o.protect(ctx, secret, key, nil)
	o.record(ctx, o.bundleEvent(audit.EventProtect, err, resultBundle(res), nil))
	return res, err
}

// ProtectWithPassword derives a key from password under a fresh salt and
// protects secret with it. The bundle records the salt and cost
// parameters, never the key.
func (o *Orchestrator) ProtectWithPassword(ctx context.Context, secret string, password []byte) (res *Result, err error) {
	defer func(start time.Time) { metrics.Observe(metrics.OpProtect, start, err) }(time.Now())

	key, kdf, err := o.derive(password, nil)
	if err == nil {
		res, err = o.protect(ctx, secret, key, kdf)
		key.Wipe()
	}
	o.record(ctx, o.bundleEvent(audit.EventProtect, err, resultBundle(res), nil))
	return res, err
}

func (o *Orchestrator) protect(ctx context.Context, secret string, key sharecipher.Key, kdf *bundle.KDF) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o.cfg.ValidateURLs {
		if err := ValidateURL(secret); err != nil {
			return nil, stageErr(StageValidate, 0, err)
		}
		if !HasMediaExtension(secret, o.cfg.MediaExtensions) {
			o.log.WarnContext(ctx, "url has no recognized media extension")
		}
	}

	f, err := o.fieldFor(len(secret))
	if err != nil {
		return nil, stageErr(StageValidate, 0, err)
	}
	tcfg, err := threshold.NewConfig(o.cfg.Threshold, o.cfg.Total, f)
	if err != nil {
		return nil, stageErr(StageValidate, 0, err)
	}
	splitter, err := threshold.NewSplitter(tcfg, threshold.WithRandom(o.rand))
	if err != nil {
		return nil, stageErr(StageSplit, 0, err)
	}
	c, err := sharecipher.New(key, o.cipherConfig())
	if err != nil {
		return nil, stageErr(StageEncrypt, 0, err)
	}
	codec, err := threshold.NewCodec(f)
	if err != nil {
		return nil, stageErr(StageEncode, 0, err)
	}

	raw := []byte(secret)
	shares, err := splitter.SplitBytes(raw)
	clear(raw)
	if err != nil {
		return nil, stageErr(StageSplit, 0, err)
	}
	defer wipeShares(shares)

	entries := make([]bundle.Entry, len(shares))
	for i, s := range shares {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := codec.Encode(s)
		if err != nil {
			return nil, stageErr(StageEncode, s.Index, err)
		}
		token, err := c.Encrypt(text)
		if err != nil {
			return nil, stageErr(StageEncrypt, s.Index, err)
		}
		entries[i] = bundle.Entry{Index: s.Index, Ciphertext: token}
	}

	b := bundle.New(uuid.NewString(), tcfg.Threshold, tcfg.Total, f.ID(), entries)
	b.KDF = kdf
	payload, err := bundle.Serialize(b)
	if err != nil {
		return nil, stageErr(StageSerialize, 0, err)
	}

	metrics.AddShares(string(f.ID()), len(entries))
	o.log.InfoContext(ctx, "secret protected",
		logging.String("bundle_id", b.ID),
		logging.Int("k", b.Threshold),
		logging.Int("n", b.Total),
		logging.String("prime", string(b.Prime)),
		logging.String("algorithm", string(c.Algorithm())),
		logging.Bool("password", kdf != nil))
	return &Result{Bundle: b, Payload: payload}, nil
}

// RecoverOption narrows the shares used by a recover run.
type RecoverOption func(*recoverOptions)

type recoverOptions struct {
	indices []int
	first   int
}

// UseShares restricts recovery to the shares with the given indices.
// Indices absent from the bundle are ignored.
func UseShares(indices ...int) RecoverOption {
	return func(r *recoverOptions) { r.indices = append([]int(nil), indices...) }
}

// UseFirst restricts recovery to the n lowest indexed shares.
func UseFirst(n int) RecoverOption {
	return func(r *recoverOptions) { r.first = n }
}

func newRecoverOptions(opts []RecoverOption) *recoverOptions {
	r := &recoverOptions{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *recoverOptions) apply(b *bundle.Bundle) *bundle.Bundle {
	switch {
	case len(r.indices) > 0:
		return b.Subset(r.indices...)
	case r.first > 0:
		idx := b.Indices()
		if r.first < len(idx) {
			idx = idx[:r.first]
		}
		return b.Subset(idx...)
	default:
		return b
	}
}

// Recover parses payload, decrypts and decodes the selected shares with
// key, and reconstructs the secret.
func (o *Orchestrator) Recover(ctx context.Context, payload string, key sharecipher.Key, opts ...RecoverOption) (secret string, err error) {
	defer func(start time.Time) { metrics.Observe(metrics.OpRecover, start, err) }(time.Now())

	ro := newRecoverOptions(opts)
	b, err := parsePayload(payload)
	var used *bundle.Bundle
	if err == nil {
		used = ro.apply(b)
		secret, err = o.recoverBundle(ctx, b, used, key)
	}
	o.record(ctx, o.bundleEvent(audit.EventRecover, err, b, used))
	return secret, err
}

// RecoverWithPassword recovers a bundle produced by ProtectWithPassword.
// Attempts are rate limited per KDF salt; excess attempts fail with
// ErrTooManyAttempts before any key derivation.
func (o *Orchestrator) RecoverWithPassword(ctx context.Context, payload string, password []byte, opts ...RecoverOption) (secret string, err error) {
	defer func(start time.Time) { metrics.Observe(metrics.OpRecover, start, err) }(time.Now())

	ro := newRecoverOptions(opts)
	b, err := parsePayload(payload)
	var used *bundle.Bundle
	if err == nil {
		used = ro.apply(b)
		secret, err = o.recoverWithPassword(ctx, b, used, password)
	}
	o.record(ctx, o.bundleEvent(audit.EventRecover, err, b, used))
	return secret, err
}

func (o *Orchestrator) recoverWithPassword(ctx context.Context, b, used *bundle.Bundle, password []byte) (string, error) {
	key, lk, err := o.passwordKey(ctx, b, password)
	if err != nil {
		return "", err
	}
	defer key.Wipe()

	secret, err := o.recoverBundle(ctx, b, used, key)
	if err == nil {
		o.limiter.Reset(lk)
	}
	return secret, err
}

// passwordKey re-derives the key of a password protected bundle using the
// parameters recorded in it. It also returns the limiter key charged for
// the attempt.
func (o *Orchestrator) passwordKey(ctx context.Context, b *bundle.Bundle, password []byte) (sharecipher.Key, string, error) {
	if b.KDF == nil {
		return sharecipher.Key{}, "", ErrNoPassword
	}
	lk := attemptKey(b)
	if !o.limiter.Allow(lk) {
		o.log.WarnContext(ctx, "password attempts exceeded", logging.String("bundle_id", b.ID))
		return sharecipher.Key{}, lk, fmt.Errorf("%w: retry in %s", ErrTooManyAttempts, o.limiter.RetryAfter(lk).Round(time.Second))
	}
	key, _, err := sharecipher.DeriveKey(password, b.KDF.Salt, &b.KDF.KDFParams)
	if err != nil {
		return sharecipher.Key{}, lk, stageErr(StageDerive, 0, err)
	}
	return key, lk, nil
}

// attemptKey charges attempts to the KDF salt. The bundle id is not
// authenticated, while a changed salt derives keys that cannot open the
// shares.
func attemptKey(b *bundle.Bundle) string {
	return "recover:salt:" + hex.EncodeToString(b.KDF.Salt)
}

// recoverBundle reconstructs the secret from the shares of used, which is b
// or a subset of it.
func (o *Orchestrator) recoverBundle(ctx context.Context, b, used *bundle.Bundle, key sharecipher.Key) (string, error) {
	tcfg, err := b.ThresholdConfig()
	if err != nil {
		return "", stageErr(StageParse, 0, err)
	}
	rec, err := threshold.NewReconstructor(tcfg)
	if err != nil {
		return "", stageErr(StageParse, 0, err)
	}

	shares, err := o.openShares(ctx, used, tcfg.Field, key)
	if err != nil {
		return "", err
	}
	defer wipeShares(shares)

	raw, err := rec.ReconstructBytes(shares)
	if err != nil {
		return "", stageErr(StageReconstruct, 0, err)
	}
	defer clear(raw)

	o.log.InfoContext(ctx, "secret recovered",
		logging.String("bundle_id", b.ID),
		logging.Ints("shares", threshold.Indices(shares)))
	return string(raw), nil
}

// openShares decrypts and decodes every entry of b.
func (o *Orchestrator) openShares(ctx context.Context, b *bundle.Bundle, f *field.Field, key sharecipher.Key) ([]threshold.Share, error) {
	c, err := sharecipher.New(key, o.cipherConfig())
	if err != nil {
		return nil, stageErr(StageDecrypt, 0, err)
	}
	codec, err := threshold.NewCodec(f)
	if err != nil {
		return nil, stageErr(StageDecode, 0, err)
	}

	shares := make([]threshold.Share, 0, len(b.Entries))
	for _, e := range b.Entries {
		s, err := openShare(ctx, c, codec, e)
		if err != nil {
			wipeShares(shares)
			return nil, err
		}
		shares = append(shares, s)
	}
	return shares, nil
}

func openShare(ctx context.Context, c *sharecipher.Cipher, codec *threshold.Codec, e bundle.Entry) (threshold.Share, error) {
	if err := ctx.Err(); err != nil {
		return threshold.Share{}, err
	}
	text, err := c.Decrypt(e.Ciphertext)
	if err != nil {
		return threshold.Share{}, stageErr(StageDecrypt, e.Index, err)
	}
	s, err := codec.Decode(text)
	if err != nil {
		return threshold.Share{}, stageErr(StageDecode, e.Index, err)
	}
	if s.Index != e.Index {
		s.Wipe()
		return threshold.Share{}, stageErr(StageDecode, e.Index,
			fmt.Errorf("%w: entry %d carries share %d", bundle.ErrMalformedBundle, e.Index, s.Index))
	}
	return s, nil
}

// GenerateKey returns a fresh random share encryption key.
func (o *Orchestrator) GenerateKey(ctx context.Context) (key sharecipher.Key, err error) {
	defer func(start time.Time) { metrics.Observe(metrics.OpKeyGenerate, start, err) }(time.Now())

	key, err = sharecipher.GenerateKeyFrom(o.rand)
	ev := audit.NewEvent(audit.EventKeyGenerate, err)
	if err == nil {
		ev.Message = "kid=" + key.ID()
	}
	o.record(ctx, ev)
	return key, err
}

// DeriveKey derives a key from password using the configured KDF. A nil
// salt is replaced with fresh random bytes. The returned KDF describes the
// derivation and may be stored alongside data protected by the key.
func (o *Orchestrator) DeriveKey(ctx context.Context, password, salt []byte) (key sharecipher.Key, kdf *bundle.KDF, err error) {
	defer func(start time.Time) { metrics.Observe(metrics.OpKeyDerive, start, err) }(time.Now())

	key, kdf, err = o.derive(password, salt)
	ev := audit.NewEvent(audit.EventKeyDerive, err)
	if err == nil {
		ev.Message = "kid=" + key.ID()
	}
	o.record(ctx, ev)
	return key, kdf, err
}

func (o *Orchestrator) derive(password, salt []byte) (sharecipher.Key, *bundle.KDF, error) {
	if salt == nil {
		salt = make([]byte, sharecipher.SaltSize)
		if _, err := io.ReadFull(o.rand, salt); err != nil {
			return sharecipher.Key{}, nil, stageErr(StageDerive, 0, err)
		}
	}
	params := *o.cfg.KDF
	key, used, err := sharecipher.DeriveKey(password, salt, &params)
	if err != nil {
		return sharecipher.Key{}, nil, stageErr(StageDerive, 0, err)
	}
	return key, &bundle.KDF{KDFParams: params, Salt: used}, nil
}

// fieldFor picks the field for an n byte secret. A secret that fits no
// field is a threshold parameter error.
func (o *Orchestrator) fieldFor(n int) (*field.Field, error) {
	if o.cfg.Prime == "" {
		f, err := field.ForSecretLength(n)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", threshold.ErrInvalidThreshold, err)
		}
		return f, nil
	}
	f, err := field.New(o.cfg.Prime)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", threshold.ErrInvalidThreshold, err)
	}
	if n > f.MaxSecretLength() {
		return nil, fmt.Errorf("%w: %w: %d bytes exceeds %s capacity of %d bytes",
			threshold.ErrInvalidThreshold, field.ErrSecretTooLarge, n, f.ID(), f.MaxSecretLength())
	}
	return f, nil
}

func (o *Orchestrator) cipherConfig() *sharecipher.Config {
	return &sharecipher.Config{
		Algorithm: o.cfg.Algorithm,
		TTL:       o.cfg.TTL,
		Random:    o.rand,
		Now:       o.now,
	}
}

func parsePayload(payload string) (*bundle.Bundle, error) {
	b, err := bundle.Parse(payload)
	if err != nil {
		return nil, stageErr(StageParse, 0, err)
	}
	return b, nil
}

func resultBundle(r *Result) *bundle.Bundle {
	if r == nil {
		return nil
	}
	return r.Bundle
}

func wipeShares(shares []threshold.Share) {
	for i := range shares {
		shares[i].Wipe()
	}
}

// bundleEvent describes an operation on b. used, when set, names the
// shares that took part.
func (o *Orchestrator) bundleEvent(t audit.EventType, err error, b, used *bundle.Bundle) *audit.Event {
	ev := audit.NewEvent(t, err)
	if b != nil {
		ev.BundleID = b.ID
		ev.Threshold = b.Threshold
		ev.Total = b.Total
		ev.Prime = string(b.Prime)
		ev.Shares = b.Indices()
	}
	if used != nil {
		ev.Shares = used.Indices()
	}
	if err != nil {
		ev.Message = err.Error()
	}
	return ev
}

func (o *Orchestrator) record(ctx context.Context, ev *audit.Event) {
	if err := o.audit.Record(ctx, ev); err != nil {
		o.log.ErrorContext(ctx, "audit record failed",
			logging.String("event", string(ev.Type)),
			logging.Error(err))
	}
}
