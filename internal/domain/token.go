package domain

import "errors"

// ErrNoToken is returned when no credential is available and the run proceeds in video-only mode.
var ErrNoToken = errors.New("no enrichment token available")

// TokenState is the lifecycle of the enrichment credential.
type TokenState string

const (
	TokenUnset       TokenState = "unset"
	TokenAcquiring   TokenState = "acquiring"
	TokenValidated   TokenState = "validated"
	TokenActive      TokenState = "active"
	TokenExpired     TokenState = "expired"
	TokenReacquiring TokenState = "reacquiring"
)

// TokenSource names where a credential came from.
type TokenSource string

const (
	TokenFromArgument    TokenSource = "argument"
	TokenFromEnvironment TokenSource = "environment"
	TokenFromPrompt      TokenSource = "interactive"
)

// Token is a session-scoped credential gating comment extraction.
// Value is never serialized.
type Token struct {
	Value  string      `json:"-"`
	State  TokenState  `json:"state"`
	Source TokenSource `json:"source"`
}

// Usable reports whether comments may be extracted with this token.
func (t *Token) Usable() bool {
	return t != nil && t.Value != "" && t.State == TokenActive
}

// Masked returns a log-safe representation of the credential.
func (t *Token) Masked() string {
	if t == nil || t.Value == "" {
		return "<none>"
	}
	if len(t.Value) <= 8 {
		return "****"
	}
	return t.Value[:4] + "…" + t.Value[len(t.Value)-4:]
}
