package sso

import "errors"

// Authentication failures. Every step of the login protocol maps onto one of
// these; callers match with errors.Is after the usual %w wrapping.
var (
	ErrCookieExtraction       = errors.New("sso: backend address cookie not found")
	ErrExecutionTokenMissing  = errors.New("sso: execution token not found in login page")
	ErrRedirectChainExhausted = errors.New("sso: redirect chain exhausted without loginName")
	ErrLoginNameMissing       = errors.New("sso: loginName not found in redirect URL")
	ErrInvalidCredentials     = errors.New("sso: invalid username or password")
	ErrUnknownAuthFailure     = errors.New("sso: login failed for unknown reason")
)
