package entity

// DomainError signals an invariant violation inside the queue domain,
// typically an illegal status transition or missing required field.
type DomainError struct {
	message string
	code    string
}

// NewDomainError creates a new domain error.
func NewDomainError(message, code string) *DomainError {
	return &DomainError{
		message: message,
		code:    code,
	}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	return e.message
}

// Code returns the machine-readable error code.
func (e *DomainError) Code() string {
	return e.code
}

// Message returns the human-readable error message.
func (e *DomainError) Message() string {
	return e.message
}
