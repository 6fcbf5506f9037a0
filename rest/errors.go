package rest

import "fmt"

// RequestError is the generic REST failure, carrying the HTTP status and
// the decoded response body.
type RequestError struct {
	Status int
	Body   any
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request failed: %d %v", e.Status, e.Body)
}

// ForbiddenError is raised for a 403 status.
type ForbiddenError struct {
	RequestError
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden: %d %v", e.Status, e.Body)
}

// NotFoundError is raised for a 404 status.
type NotFoundError struct {
	RequestError
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %d %v", e.Status, e.Body)
}

// ServerError is raised for a 500 range status.
type ServerError struct {
	RequestError
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %d %v", e.Status, e.Body)
}

// LoginError is raised when the service rejects the credential during
// login. Retrying with the same token will not succeed.
type LoginError struct {
	Err error
}

func (e *LoginError) Error() string {
	return "login failed: invalid token passed"
}

func (e *LoginError) Unwrap() error {
	return e.Err
}
