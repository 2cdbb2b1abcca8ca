// ABOUTME: HTTP middleware for both trust boundaries
// ABOUTME: AgentMiddleware checks HMAC signatures, TokenMiddleware checks operator JWTs

package auth

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
)

// Header names for agent-originated requests.
const (
	HeaderAgentID   = "X-Agent-Id"
	HeaderSignature = "X-Signature"
)

type contextKey string

const (
	agentIDKey contextKey = "fleetward.agent_id"
	rawBodyKey contextKey = "fleetward.raw_body"
	subjectKey contextKey = "fleetward.subject"
)

// AgentID returns the authenticated agent id from the request context, or
// "" if the request did not pass through AgentMiddleware.
func AgentID(ctx context.Context) string {
	id, _ := ctx.Value(agentIDKey).(string)
	return id
}

// RawBody returns the raw request body bytes that the signature was
// verified against. Handlers must parse this instead of re-reading r.Body.
func RawBody(ctx context.Context) []byte {
	body, _ := ctx.Value(rawBodyKey).([]byte)
	return body
}

// Subject returns the authenticated operator subject from the request
// context, or "" if the request did not pass through TokenMiddleware.
func Subject(ctx context.Context) string {
	sub, _ := ctx.Value(subjectKey).(string)
	return sub
}

// AgentMiddleware verifies the fleet HMAC signature on agent-originated
// requests. The signature is checked against the exact raw body bytes
// before any handler parses the payload. Missing headers are a 400,
// a failed verification is a 401; in both cases no state is touched.
//
// GET requests have no body; agents sign the literal bytes "{}" for those,
// matching the client in internal/agent.
func AgentMiddleware(fleetKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			agentID := r.Header.Get(HeaderAgentID)
			signature := r.Header.Get(HeaderSignature)
			if agentID == "" || signature == "" {
				http.Error(w, `{"error":"missing authentication headers"}`, http.StatusBadRequest)
				return
			}

			raw, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, `{"error":"reading body"}`, http.StatusBadRequest)
				return
			}
			r.Body.Close()

			signed := raw
			if len(signed) == 0 {
				signed = []byte("{}")
			}
			if !Verify(signature, signed, fleetKey) {
				http.Error(w, `{"error":"invalid signature"}`, http.StatusUnauthorized)
				return
			}

			// Hand the verified bytes to the handler untouched.
			r.Body = io.NopCloser(bytes.NewReader(raw))
			ctx := context.WithValue(r.Context(), agentIDKey, agentID)
			ctx = context.WithValue(ctx, rawBodyKey, raw)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractToken pulls the operator token from the Authorization header or,
// failing that, the ?token= query parameter. Returns the token and an
// error message (empty if successful).
func extractToken(r *http.Request) (string, string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return "", "invalid authorization header format"
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == "" {
			return "", "empty token"
		}
		return token, ""
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, ""
	}
	return "", "missing token"
}

// TokenMiddleware creates an HTTP middleware that validates operator JWTs.
// The token subject must match the configured operator user; anything else
// is rejected with 401 before the handler runs.
func TokenMiddleware(verifier TokenVerifier, user string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractToken(r)
			if errMsg != "" {
				http.Error(w, `{"error":"`+errMsg+`"}`, http.StatusUnauthorized)
				return
			}

			subject, err := verifier.Verify(token)
			if err != nil || subject != user {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
