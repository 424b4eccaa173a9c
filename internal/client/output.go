// Package client provides the HTTP client, configuration and output
// formatting for the EmbedQueue operator CLI. All command output is a JSON
// envelope with a success flag so automation can branch on one field.
package client

import (
	"encoding/json"
	"io"
	"time"
)

// Response is the JSON envelope every CLI command writes. Data and Error are
// mutually exclusive; the zero value of each is omitted from the output.
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *Error      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Error carries structured failure information in a CLI response: a
// machine-readable code, a human-readable message and optional details
// (string, map or array).
type Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// WriteSuccess writes a success envelope holding data to w. The timestamp is
// taken at write time. Returns an error if encoding or writing fails.
func WriteSuccess(w io.Writer, data interface{}) error {
	response := Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
	}
	return json.NewEncoder(w).Encode(response)
}

// WriteError writes an error envelope to w. code should be machine-readable
// (e.g. "NOT_FOUND"), message human-readable; details may add context.
// Returns an error if encoding or writing fails.
func WriteError(w io.Writer, code, message string, details interface{}) error {
	response := Response{
		Success: false,
		Error: &Error{
			Code:    code,
			Message: message,
			Details: details,
		},
		Timestamp: time.Now(),
	}
	return json.NewEncoder(w).Encode(response)
}
