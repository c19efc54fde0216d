// Package apierror defines the closed error taxonomy reported to tool callers
// and classifies failed Google API and OAuth responses into it.
//
// Every failure that reaches the tool surface is an *Error carrying a Code,
// an HTTP-like status, a message, and classification context such as the
// Google-provided failure reason:
//
//	if apierror.Is(err, apierror.CodeConflict) {
//	    // fall back to fetching the existing object
//	}
package apierror
