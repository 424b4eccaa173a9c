package valueobject

import "fmt"

// Operation is the semantic hint passed through to the embedding call. The
// queue itself never interprets it.
type Operation string

// Operation constants.
const (
	OperationInsert Operation = "INSERT"
	OperationUpdate Operation = "UPDATE"
)

// validOperations contains all valid operations.
var validOperations = map[Operation]bool{
	OperationInsert: true,
	OperationUpdate: true,
}

// NewOperation creates a new Operation with validation.
func NewOperation(operation string) (Operation, error) {
	op := Operation(operation)
	if !validOperations[op] {
		return "", fmt.Errorf("invalid operation: %s", operation)
	}
	return op, nil
}

// String returns the string representation of the operation.
func (o Operation) String() string {
	return string(o)
}
