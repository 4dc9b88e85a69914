// Package auth authenticates gateway API callers.
//
// # Shared Secret
//
// The chat-completions endpoint accepts a single shared secret configured
// at startup. When set, callers must send it verbatim:
//
//	Authorization: Bearer <secret>
//
// CheckSecret compares in constant time. An empty configured secret
// disables the check.
//
// # JWT Tokens
//
// When auth.jwt_secret is configured the job API (/api/v1/*) requires an
// HS256 token whose "sub" claim names the caller. Tokens are minted with
// the `research-gateway token` command:
//
//	verifier := auth.NewJWTVerifier(secret)
//	token, err := verifier.Generate("ci-runner", 24*time.Hour)
//
// RequireJWT verifies the token and stores the subject on the request
// context, where handlers read it with SubjectFromContext.
package auth
