package core

import "net/http"

// FailureKind identifies one of the closed set of expected auth failures.
type FailureKind int

const (
	KindInvalidCredentials FailureKind = iota
	KindInvalidToken
	KindTokenExpired
	KindUserNotFound
	KindMisconfiguredSecret
)

// AppError is a typed failure carrying a fixed HTTP status and a stable
// machine-readable code. It is constructed at the point of detection and
// propagated unchanged up to the HTTP boundary.
type AppError struct {
	Kind    FailureKind
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

// ErrInvalidCredentials covers both unknown username and wrong password so the
// two cases are indistinguishable to a caller.
func ErrInvalidCredentials() *AppError {
	return &AppError{
		Kind:    KindInvalidCredentials,
		Status:  http.StatusUnauthorized,
		Code:    "AUTH_INVALID_CREDENTIALS",
		Message: "username or password is incorrect",
	}
}

// ErrInvalidToken covers missing, malformed, and signature-mismatched tokens.
func ErrInvalidToken() *AppError {
	return &AppError{
		Kind:    KindInvalidToken,
		Status:  http.StatusUnauthorized,
		Code:    "AUTH_INVALID_TOKEN",
		Message: "authentication token is missing or invalid",
	}
}

// ErrTokenExpired is distinguished from ErrInvalidToken because it drives a
// different user-facing message (log in again vs malformed credentials).
func ErrTokenExpired() *AppError {
	return &AppError{
		Kind:    KindTokenExpired,
		Status:  http.StatusUnauthorized,
		Code:    "AUTH_TOKEN_EXPIRED",
		Message: "authentication token has expired, please log in again",
	}
}

// ErrUserNotFound is surfaced only in authenticated self-service flows, never
// during login where it would leak username existence.
func ErrUserNotFound() *AppError {
	return &AppError{
		Kind:    KindUserNotFound,
		Status:  http.StatusNotFound,
		Code:    "USER_NOT_FOUND",
		Message: "user does not exist",
	}
}

// ErrMisconfiguredSecret is a startup precondition failure. It is never
// written to an HTTP response; main logs it and exits.
func ErrMisconfiguredSecret() *AppError {
	return &AppError{
		Kind:    KindMisconfiguredSecret,
		Status:  http.StatusInternalServerError,
		Code:    "AUTH_CONFIG_ERROR",
		Message: "token signing secret is not configured",
	}
}
