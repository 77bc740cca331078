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

// Package rest serves the sharevault HTTP API.
//
// Every operation is delegated to an orchestrator.Orchestrator; the
// package only decodes requests, applies authentication and limits, and
// maps error classifications to HTTP status codes.
//
// # Server Setup
//
//	orch, _ := orchestrator.New(orchestrator.DefaultConfig(),
//	    orchestrator.WithStorage(memory.New()),
//	    orchestrator.WithCustody(wrapper))
//
//	server, _ := rest.NewServer(&rest.Config{
//	    Addr:         "127.0.0.1:8443",
//	    Orchestrator: orch,
//	    MetricsPath:  "/metrics",
//	})
//	go server.Start()
//	defer server.Stop(ctx)
//
// # API Endpoints
//
// Probes (no authentication):
//   - GET /health, /health/live, /health/ready, /health/startup
//   - GET /metrics when a metrics path is configured
//
// Keys and bundles:
//   - POST /api/v1/keys - generate a key, or derive one from a password
//   - POST /api/v1/bundles - split, encrypt and serialize a secret
//   - POST /api/v1/bundles/recover - reconstruct a secret
//   - POST /api/v1/bundles/inspect - describe a payload without a key
//   - POST /api/v1/bundles/verify - test every k-subset of a payload
//
// Sessions:
//   - GET /api/v1/sessions
//   - GET /api/v1/sessions/{id}
//   - DELETE /api/v1/sessions/{id}
//   - POST /api/v1/sessions/{id}/recover - recover with the custody wrapped key
//
// # Errors
//
// Failures are JSON ErrorResponse bodies carrying the errcode
// classification. Too few shares and threshold disagreements are 422,
// authentication failures 401, malformed input 400, missing sessions 404
// and exhausted password attempts 429.
package rest
