// Package errors provides standardized error handling patterns for RoboBridge components.
//
// # Overview
//
// The errors package implements a three-class error classification system designed
// for a robot agent talking to a remote inference service: Transient (temporary,
// retryable), Invalid (bad input, non-retryable), and Fatal (unrecoverable, stop
// processing).
//
// This classification enables intelligent error handling strategies throughout the
// bridge, allowing components to make informed decisions about retries, graceful
// degradation, and failure recovery without hardcoded error string matching.
//
// # Error Classification
//
// Errors are automatically classified based on their type or content:
//
//   - Transient: Network timeouts, connection issues, temporary unavailability (retry recommended)
//   - Invalid: Malformed envelopes, bad image payloads, unknown action types (do not retry)
//   - Fatal: Duplicate request ids, bad configuration, unrecoverable states (stop processing)
//
// The classification system integrates seamlessly with Go's standard error handling
// patterns, supporting errors.Is(), errors.As(), and error wrapping chains.
//
// Physical robot actions are deliberately never classified transient: replaying a
// gesture or movement command after a partial failure could move hardware twice.
// Handler and dispatch failures therefore classify as Invalid.
//
// # Quick Start
//
// Use standard error variables for common conditions:
//
//	// Return standard error for known conditions
//	if resp.ID != req.ID {
//	    return errors.ErrProtocol
//	}
//
// Wrap errors with context for debugging:
//
//	// Wrap third-party errors with component context
//	if err := transport.Send(ctx, req); err != nil {
//	    return errors.Wrap(err, "Bridge", "Ask", "send request")
//	}
//
// Check classification for retry logic:
//
//	// Make retry decisions based on error class
//	if err := operation(); err != nil {
//	    if errors.IsTransient(err) {
//	        // Retry with exponential backoff
//	        config := errors.DefaultRetryConfig()
//	        if config.ShouldRetry(err, attempt) {
//	            time.Sleep(config.BackoffDelay(attempt))
//	            // retry operation
//	        }
//	    } else if errors.IsFatal(err) {
//	        // Stop processing, escalate to operator
//	        log.Fatalf("Unrecoverable error: %v", err)
//	    }
//	}
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// This format enables consistent log parsing, debugging, and operational monitoring
// across the bridge. The Wrap family of functions automatically applies this pattern
// while preserving error classification through the chain.
//
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Component", "Method", "action")  // For retryable errors
//	errors.WrapInvalid(err, "Component", "Method", "action")    // For validation errors
//	errors.WrapFatal(err, "Component", "Method", "action")      // For unrecoverable errors
//
// The generic Wrap() function preserves the original error's classification:
//
//	errors.Wrap(err, "Component", "Method", "action")  // Preserves original class
//
// # Standard Error Variables
//
// The package provides pre-defined error variables for common conditions, organized
// by category:
//
//   - Request path: ErrBadImage, ErrTransport, ErrProtocol, ErrTimeout, ErrDuplicateID
//   - Dispatch: ErrUnknownAction, ErrHandler
//   - Component lifecycle: ErrAlreadyStarted, ErrNotStarted, ErrAlreadyStopped
//   - Connection issues: ErrConnectionLost, ErrConnectionTimeout, ErrNoConnection
//   - Peripherals: ErrCaptureFailed, ErrSpeechFailed
//
// Use these variables instead of creating custom error messages for consistency:
//
//	// Good - uses standard variable
//	if declared != len(payload) {
//	    return errors.ErrProtocol
//	}
//
//	// Avoid - custom error message
//	if declared != len(payload) {
//	    return errors.New("malformed envelope")
//	}
//
// # Retry Configuration
//
// The package includes built-in retry support with exponential backoff:
//
//	config := errors.DefaultRetryConfig()
//
//	for attempt := 0; attempt < config.MaxRetries; attempt++ {
//	    if err := operation(); err != nil {
//	        if !config.ShouldRetry(err, attempt) {
//	            return err  // Non-retryable or max attempts reached
//	        }
//	        delay := config.BackoffDelay(attempt)
//	        time.Sleep(delay)
//	        continue
//	    }
//	    return nil  // Success
//	}
//
// The retry configuration converts to the pkg/retry framework type:
//
//	retryConfig := errorConfig.ToRetryConfig()
//	// Use with retry.Do / retry.DoWithResult
//
// # Integration with errors.As/Is
//
// All error types support standard library error inspection:
//
//	// Check error classification
//	var ce *errors.ClassifiedError
//	if errors.As(err, &ce) {
//	    log.Printf("Component: %s, Class: %s", ce.Component, ce.Class)
//	}
//
//	// Check for specific standard errors
//	if errors.Is(err, errors.ErrTimeout) {
//	    // Handle timeout specifically
//	}
//
//	// Classification is preserved through error chains
//	wrapped := errors.Wrap(errors.ErrTransport, "Transport", "Send", "publish")
//	if errors.IsTransient(wrapped) {  // true - classification preserved
//	    // Retry logic
//	}
//
// # Context Cancellation
//
// Context errors (context.DeadlineExceeded, context.Canceled) are automatically
// classified as Transient, enabling consistent handling of context-based timeouts:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//
//	if err := operation(ctx); err != nil {
//	    if errors.IsTransient(err) {
//	        // Handles both network timeouts AND context timeouts
//	        log.Printf("Transient error (retry recommended): %v", err)
//	    }
//	}
//
// # Thread Safety
//
// All classification and wrapping operations are thread-safe. Error variables
// are immutable constants safe for concurrent access. The ClassifiedError type
// is safe to share across goroutines after creation.
//
// # Architecture Integration
//
// The errors package integrates with other RoboBridge components:
//
//   - bridge: the request pipeline maps classified errors to spoken fallback replies
//   - transport: adapters use standard connection error variables and retry policy
//   - correlator: pending-table violations surface as ErrDuplicateID and ErrTimeout
//   - dispatch: handler panics and failures surface as ErrHandler without killing the loop
//   - retry: pkg/retry uses error classification for retry decisions
package errors
