package error

import "net/http"

// GenericError is implemented by every typed API error so the recovery
// middleware can map panics back to a proper HTTP response.
type GenericError interface {
	Error() string
	ErrCode() string
	StatusCode() int
}

type NotFoundError string

func (err NotFoundError) Error() string {
	return string(err)
}

func (err NotFoundError) ErrCode() string {
	return "NOT_FOUND_ERROR"
}

func (err NotFoundError) StatusCode() int {
	return http.StatusNotFound
}

type ValidationError string

func (err ValidationError) Error() string {
	return string(err)
}

func (err ValidationError) ErrCode() string {
	return "VALIDATION_ERROR"
}

func (err ValidationError) StatusCode() int {
	return http.StatusBadRequest
}

type AuthError string

func (err AuthError) Error() string {
	return string(err)
}

func (err AuthError) ErrCode() string {
	return "AUTHENTICATION_ERROR"
}

func (err AuthError) StatusCode() int {
	return http.StatusUnauthorized
}

type WebhookError string

func (err WebhookError) Error() string {
	return string(err)
}

func (err WebhookError) ErrCode() string {
	return "WEBHOOK_ERROR"
}

func (err WebhookError) StatusCode() int {
	return http.StatusInternalServerError
}
