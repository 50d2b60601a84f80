package connectors

import "time"

// RetryConfig controls the fetch retry schedule for a source
type RetryConfig struct {
	MaxRetries   int    `json:"max_retries,omitempty"`   // Maximum retry attempts. Defaults to 3
	BackoffType  string `json:"backoff_type,omitempty"`  // "fibonacci", "exponential", "linear". Defaults to exponential
	InitialDelay int    `json:"initial_delay,omitempty"` // Initial delay in milliseconds. Defaults to 1000
	MaxDelay     int    `json:"max_delay,omitempty"`     // Maximum delay in milliseconds. Defaults to 60000
}

// DefaultRetryConfig returns the retry schedule used when a source declares
// nothing of its own.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		BackoffType:  "exponential",
		InitialDelay: 1000,
		MaxDelay:     60000,
	}
}

// CalculateBackoff calculates the delay before a retry attempt. Rate limited
// sources bypass this entirely and honor their declared Retry-After hint.
func CalculateBackoff(retry *RetryConfig, attempt int) time.Duration {
	if retry == nil {
		return time.Second
	}

	var delayMs int
	switch retry.BackoffType {
	case "fibonacci":
		delayMs = fibonacciBackoff(retry.InitialDelay, attempt)
	case "exponential":
		delayMs = exponentialBackoff(retry.InitialDelay, attempt)
	case "linear":
		delayMs = linearBackoff(retry.InitialDelay, attempt)
	default:
		delayMs = exponentialBackoff(retry.InitialDelay, attempt)
	}

	if delayMs > retry.MaxDelay {
		delayMs = retry.MaxDelay
	}

	return time.Duration(delayMs) * time.Millisecond
}

func fibonacciBackoff(initial int, attempt int) int {
	if attempt <= 1 {
		return initial
	}
	a, b := 1, 1
	for i := 2; i < attempt; i++ {
		a, b = b, a+b
	}
	return initial * b
}

func exponentialBackoff(initial int, attempt int) int {
	multiplier := 1
	for i := 1; i < attempt; i++ {
		multiplier *= 2
	}
	return initial * multiplier
}

func linearBackoff(initial int, attempt int) int {
	return initial * attempt
}
