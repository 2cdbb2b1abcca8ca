// Package auth implements the two trust boundaries of fleetward.
//
// # Fleet boundary (agent <-> server)
//
// Agents authenticate every request with an HMAC-SHA256 signature computed
// over the exact raw request body using the shared fleet key:
//
//	sig := auth.Sign(body, fleetKey)
//	req.Header.Set("X-Agent-Id", agentID)
//	req.Header.Set("X-Signature", sig)
//
// On the server side, AgentMiddleware verifies the signature before any
// handler sees the payload. Verification uses a constant-time comparison;
// a mismatching signature never reveals how much of it matched.
//
// Compromise of the shared fleet key compromises the whole fleet. There is
// no per-agent key in this design.
//
// # Operator boundary (dashboard <-> server)
//
// Operators authenticate with HS256 JWTs issued by the login endpoint.
// TokenMiddleware accepts the token either as an Authorization bearer
// header or as a ?token= query parameter (the latter for EventSource and
// WebSocket clients that cannot set headers).
package auth
