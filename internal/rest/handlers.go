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

package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jeremyhahn/go-sharevault/pkg/bundle"
	"github.com/jeremyhahn/go-sharevault/pkg/logging"
	"github.com/jeremyhahn/go-sharevault/pkg/orchestrator"
	"github.com/jeremyhahn/go-sharevault/pkg/sharecipher"
)

// HandlerContext holds the dependencies of the API handlers.
type HandlerContext struct {
	orch    *orchestrator.Orchestrator
	health  HealthChecker
	version string
	logger  logging.Logger
}

// decodeOptionalJSON is decodeJSON that accepts an empty body.
func decodeOptionalJSON(r *http.Request, v any) error {
	err := decodeJSON(r, v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// GenerateKeyHandler handles POST /api/v1/keys.
func (h *HandlerContext) GenerateKeyHandler(w http.ResponseWriter, r *http.Request) {
	var req KeyRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	if req.Password == "" && len(req.Salt) > 0 {
		h.handleError(w, r, fmt.Errorf("%w: salt requires a password", ErrInvalidRequest))
		return
	}

	var (
		key sharecipher.Key
		kdf *bundle.KDF
		err error
	)
	if req.Password != "" {
		key, kdf, err = h.orch.DeriveKey(r.Context(), []byte(req.Password), req.Salt)
	} else {
		key, err = h.orch.GenerateKey(r.Context())
	}
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	defer key.Wipe()

	jwk, err := key.JWK("")
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, h.logger, KeyResponse{Key: key.Encode(), KID: key.ID(), JWK: json.RawMessage(jwk), KDF: kdf}, http.StatusCreated)
}

// ProtectHandler handles POST /api/v1/bundles.
func (h *HandlerContext) ProtectHandler(w http.ResponseWriter, r *http.Request) {
	var req ProtectRequest
	if err := decodeJSON(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	if err := errors.Join(required(req.Secret, "secret"), credentials(req.Key, req.Password, false)); err != nil {
		h.handleError(w, r, err)
		return
	}

	ctx := r.Context()
	var (
		res  *orchestrator.Result
		resp ProtectResponse
		key  *sharecipher.Key
		err  error
	)
	if req.Password != "" {
		res, err = h.orch.ProtectWithPassword(ctx, req.Secret, []byte(req.Password))
	} else {
		var k sharecipher.Key
		if req.Key != "" {
			k, err = parseKey(req.Key)
		} else {
			k, err = h.orch.GenerateKey(ctx)
			resp.Key = k.Encode()
		}
		if err != nil {
			h.handleError(w, r, err)
			return
		}
		defer k.Wipe()
		key = &k
		res, err = h.orch.Protect(ctx, req.Secret, k)
	}
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	if req.Save {
		s, err := h.orch.SaveSession(ctx, res.Payload, key)
		if err != nil {
			h.handleError(w, r, err)
			return
		}
		resp.SessionID = s.ID
	}

	resp.BundleInfo = bundleInfo(res.Bundle)
	resp.Payload = res.Payload
	writeJSON(w, h.logger, resp, http.StatusCreated)
}

func recoverOptions(shares []int) []orchestrator.RecoverOption {
	if len(shares) == 0 {
		return nil
	}
	return []orchestrator.RecoverOption{orchestrator.UseShares(shares...)}
}

// RecoverHandler handles POST /api/v1/bundles/recover.
func (h *HandlerContext) RecoverHandler(w http.ResponseWriter, r *http.Request) {
	var req RecoverRequest
	if err := decodeJSON(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	err := errors.Join(required(req.Payload, "payload"), credentials(req.Key, req.Password, true), checkShares(req.Shares))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	ctx := r.Context()
	opts := recoverOptions(req.Shares)
	var secret string
	if req.Password != "" {
		secret, err = h.orch.RecoverWithPassword(ctx, req.Payload, []byte(req.Password), opts...)
	} else {
		var key sharecipher.Key
		if key, err = parseKey(req.Key); err == nil {
			secret, err = h.orch.Recover(ctx, req.Payload, key, opts...)
			key.Wipe()
		}
	}
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	resp := RecoverResponse{Secret: secret}
	if b, err := bundle.Parse(req.Payload); err == nil {
		resp.BundleID = b.ID
	}
	writeJSON(w, h.logger, resp, http.StatusOK)
}

// InspectHandler handles POST /api/v1/bundles/inspect. It needs no key.
func (h *HandlerContext) InspectHandler(w http.ResponseWriter, r *http.Request) {
	var req InspectRequest
	if err := decodeJSON(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	if err := required(req.Payload, "payload"); err != nil {
		h.handleError(w, r, err)
		return
	}
	b, err := bundle.Parse(req.Payload)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, h.logger, bundleInfo(b), http.StatusOK)
}

// VerifyHandler handles POST /api/v1/bundles/verify. A failed verification
// is a 200 whose report status is "failed".
func (h *HandlerContext) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := decodeJSON(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	err := errors.Join(required(req.Payload, "payload"), credentials(req.Key, req.Password, true))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	ctx := r.Context()
	var report *orchestrator.VerificationReport
	if req.Password != "" {
		report, err = h.orch.VerifyWithPassword(ctx, req.Payload, []byte(req.Password), req.Expected)
	} else {
		var key sharecipher.Key
		if key, err = parseKey(req.Key); err == nil {
			report, err = h.orch.Verify(ctx, req.Payload, key, req.Expected)
			key.Wipe()
		}
	}
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, h.logger, report, http.StatusOK)
}

// ListSessionsHandler handles GET /api/v1/sessions.
func (h *HandlerContext) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	ids, err := h.orch.ListSessions(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, h.logger, ListSessionsResponse{Sessions: ids}, http.StatusOK)
}

// GetSessionHandler handles GET /api/v1/sessions/{id}. The wrapped key is
// not returned.
func (h *HandlerContext) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	s, err := h.orch.LoadSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, h.logger, SessionResponse{SessionInfo: sessionInfo(s), Payload: s.Payload}, http.StatusOK)
}

// DeleteSessionHandler handles DELETE /api/v1/sessions/{id}.
func (h *HandlerContext) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.orch.DeleteSession(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RecoverSessionHandler handles POST /api/v1/sessions/{id}/recover using
// the custody wrapped key stored with the session.
func (h *HandlerContext) RecoverSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req SessionRecoverRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	if err := checkShares(req.Shares); err != nil {
		h.handleError(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	secret, err := h.orch.RecoverSession(r.Context(), id, recoverOptions(req.Shares)...)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, h.logger, RecoverResponse{BundleID: id, Secret: secret}, http.StatusOK)
}

func sessionInfo(s *orchestrator.Session) SessionInfo {
	info := SessionInfo{
		ID:                s.ID,
		CreatedAt:         s.CreatedAt,
		Threshold:         s.Threshold,
		Total:             s.Total,
		Prime:             s.Prime,
		PasswordProtected: s.PasswordProtected(),
	}
	if s.Key != nil {
		info.KeyProvider = s.Key.Provider
	}
	return info
}
