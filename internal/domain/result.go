package domain

import "time"

// ResultKind tags how a detection cycle produced its text.
type ResultKind string

const (
	KindComplete      ResultKind = "complete"       // text stayed stable long enough
	KindPartial       ResultKind = "partial"        // deadline hit, newest text returned as-is
	KindTimeout       ResultKind = "timeout"        // deadline hit, no new element appeared
	KindDegraded      ResultKind = "degraded"       // recovered from raw page text
	KindDegradedEmpty ResultKind = "degraded_empty" // raw page text had nothing substantial
	KindDegradedError ResultKind = "degraded_error" // raw page text could not be read
)

const (
	TimeoutText       = "Response timeout - no response received"
	NoExtractText     = "Could not extract response"
	ExtractFailedText = "Error extracting response"
)

// Result is the outcome of one send/await cycle.
type Result struct {
	Kind        ResultKind
	Text        string
	Elapsed     time.Duration
	Polls       int
	StableTicks int

	// Source is the element the text was read from; nil for timeout and
	// degraded results.
	Source Element
}

// Answered reports whether the page finished a response normally.
func (r Result) Answered() bool {
	return r.Kind == KindComplete
}

// Degraded reports whether the text came from the raw page fallback.
func (r Result) Degraded() bool {
	switch r.Kind {
	case KindDegraded, KindDegradedEmpty, KindDegradedError:
		return true
	}
	return false
}

// Sentinel reports whether Text is a fixed placeholder rather than page content.
func (r Result) Sentinel() bool {
	switch r.Kind {
	case KindTimeout, KindDegradedEmpty, KindDegradedError:
		return true
	}
	return false
}
