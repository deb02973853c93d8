package app

import "fmt"

// DomainError is a service-layer failure that already knows how it should
// surface over HTTP. mapError unwraps it at the boundary; everything else
// travels as plain wrapped errors.
type DomainError struct {
	Status  int
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string) *DomainError {
	return &DomainError{Status: status, Code: code, Message: message}
}
