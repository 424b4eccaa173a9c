package valueobject

import (
	"testing"
)

func TestNewErrorType(t *testing.T) {
	valid := []string{"validation", "rate_limited", "timeout", "network", "circuit_open", "dead_letter", "unknown"}
	for _, input := range valid {
		errorType, err := NewErrorType(input)
		if err != nil {
			t.Fatalf("Expected no error for valid error type %s, got: %v", input, err)
		}
		if errorType.String() != input {
			t.Errorf("Expected error type %s, got %s", input, errorType)
		}
	}

	for _, input := range []string{"", "TIMEOUT", "throttled", "fatal"} {
		if _, err := NewErrorType(input); err == nil {
			t.Errorf("Expected error for invalid error type %q, got none", input)
		}
	}
}

func TestErrorType_CountsAgainstRetryBudget(t *testing.T) {
	testCases := []struct {
		errorType ErrorType
		counts    bool
	}{
		{ErrorTypeTimeout, true},
		{ErrorTypeNetwork, true},
		{ErrorTypeCircuitOpen, true},
		{ErrorTypeUnknown, true},
		// Rate limiting is scheduled, not retried, and must never consume
		// the retry budget.
		{ErrorTypeRateLimited, false},
		{ErrorTypeValidation, false},
		{ErrorTypeDeadLetter, false},
	}

	for _, tc := range testCases {
		t.Run(tc.errorType.String(), func(t *testing.T) {
			if got := tc.errorType.CountsAgainstRetryBudget(); got != tc.counts {
				t.Errorf("Expected CountsAgainstRetryBudget() to be %v for %s, got %v",
					tc.counts, tc.errorType, got)
			}
		})
	}
}

func TestErrorType_IsRetryable(t *testing.T) {
	testCases := []struct {
		errorType ErrorType
		retryable bool
	}{
		{ErrorTypeRateLimited, true},
		{ErrorTypeTimeout, true},
		{ErrorTypeNetwork, true},
		{ErrorTypeCircuitOpen, true},
		{ErrorTypeUnknown, true},
		{ErrorTypeValidation, false},
		{ErrorTypeDeadLetter, false},
	}

	for _, tc := range testCases {
		t.Run(tc.errorType.String(), func(t *testing.T) {
			if got := tc.errorType.IsRetryable(); got != tc.retryable {
				t.Errorf("Expected IsRetryable() to be %v for %s, got %v",
					tc.retryable, tc.errorType, got)
			}
		})
	}
}
