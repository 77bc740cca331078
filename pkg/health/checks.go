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

package health

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-sharevault/pkg/field"
	"github.com/jeremyhahn/go-sharevault/pkg/sharecipher"
	"github.com/jeremyhahn/go-sharevault/pkg/storage"
	"github.com/jeremyhahn/go-sharevault/pkg/threshold"
)

// ProbeKey is written and removed by StorageCheck.
const ProbeKey = "health/probe"

// StorageCheck writes, reads back and deletes ProbeKey on backend.
func StorageCheck(backend storage.Backend) CheckFunc {
	return func(ctx context.Context) CheckResult {
		if backend == nil {
			return CheckResult{Status: StatusUnhealthy, Message: "storage not configured"}
		}
		want := []byte("ok")
		if err := backend.Put(ctx, ProbeKey, want, nil); err != nil {
			return failed("storage write failed", err)
		}
		got, err := backend.Get(ctx, ProbeKey)
		if err != nil {
			return failed("storage read failed", err)
		}
		if err := backend.Delete(ctx, ProbeKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return CheckResult{Status: StatusDegraded, Message: "storage probe not removed", Error: err.Error()}
		}
		if !bytes.Equal(got, want) {
			return CheckResult{Status: StatusUnhealthy, Message: "storage returned a different value"}
		}
		return CheckResult{Status: StatusHealthy, Message: "storage reachable"}
	}
}

// SelfTestCheck splits a fixed value 2-of-3 over the smallest field that
// holds it, encrypts and decrypts one share with a fresh key, and
// reconstructs from the last two shares.
func SelfTestCheck() CheckFunc {
	return func(ctx context.Context) CheckResult {
		if err := selfTest(); err != nil {
			return failed("self test failed", err)
		}
		return CheckResult{Status: StatusHealthy, Message: "split, encrypt and reconstruct ok"}
	}
}

// selfTestValue is longer than a P-256 element holds, so the check also
// covers field selection.
const selfTestValue = "https://health.invalid/self-test"

func selfTest() error {
	f, err := field.ForSecretLength(len(selfTestValue))
	if err != nil {
		return err
	}
	cfg, err := threshold.NewConfig(2, 3, f)
	if err != nil {
		return err
	}
	splitter, err := threshold.NewSplitter(cfg)
	if err != nil {
		return err
	}
	shares, err := splitter.SplitBytes([]byte(selfTestValue))
	if err != nil {
		return err
	}

	codec, err := threshold.NewCodec(cfg.Field)
	if err != nil {
		return err
	}
	text, err := codec.Encode(shares[1])
	if err != nil {
		return err
	}
	key, err := sharecipher.GenerateKey()
	if err != nil {
		return err
	}
	defer key.Wipe()
	c, err := sharecipher.New(key, nil)
	if err != nil {
		return err
	}
	token, err := c.Encrypt(text)
	if err != nil {
		return err
	}
	plain, err := c.Decrypt(token)
	if err != nil {
		return err
	}
	decoded, err := codec.Decode(plain)
	if err != nil {
		return err
	}

	reconstructor, err := threshold.NewReconstructor(cfg)
	if err != nil {
		return err
	}
	secret, err := reconstructor.ReconstructBytes([]threshold.Share{decoded, shares[2]})
	if err != nil {
		return err
	}
	if string(secret) != selfTestValue {
		return fmt.Errorf("reconstructed value mismatch")
	}
	return nil
}

func failed(msg string, err error) CheckResult {
	return CheckResult{Status: StatusUnhealthy, Message: msg, Error: err.Error()}
}
