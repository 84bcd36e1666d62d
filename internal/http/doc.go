// Package http exposes the ledger over a JSON API routed with chi.
//
// Endpoints:
//   - GET /healthz: liveness probe, never PIN protected.
//   - GET /rules[?active=true], POST /rules, GET|PUT|DELETE /rules/{id}:
//     recurring rule management exchanging the `ruleDTO` payload defined in
//     rule_handler.go. Responses carry an RFC 5545 `rrule` line for export.
//   - POST /rules/{id}/pause, POST /rules/{id}/resume: toggle generation.
//   - GET /rules/{id}/upcoming?count=N: preview up to 100 due dates.
//   - GET /transactions?from=&to=&rule_id=&origin=&limit=, POST /transactions,
//     DELETE /transactions/{id}: ledger entries (`transactionDTO`).
//   - GET /transactions/summary?from=&to=: income, expense and per-category totals.
//   - POST /generation/run[?force=true]: run one generation pass; 409 while a
//     pass is already in flight.
//   - GET /generation/status: the in-flight flag and the last run marker.
//
// When a PIN hash is configured, RequirePIN guards every route except /healthz
// and expects the PIN in the X-Ledger-PIN header.
package http
