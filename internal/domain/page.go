package domain

import "context"

// Element is a handle to a DOM node believed to hold assistant output.
// Its text may change between reads and a read fails once the node is gone.
type Element interface {
	Text(ctx context.Context) (string, error)
}

// HTMLElement is implemented by elements that can also return their inner HTML.
type HTMLElement interface {
	Element
	HTML(ctx context.Context) (string, error)
}

// Snapshot is the ordered list of response elements seen at one instant.
type Snapshot []Element

// Newest returns the last element of the snapshot, or nil when it is empty.
func (s Snapshot) Newest() Element {
	if len(s) == 0 {
		return nil
	}
	return s[len(s)-1]
}

// PageAccessor reads the response elements of a live chat page.
type PageAccessor interface {
	// Snapshot returns every element matched by the selection rules, rule by
	// rule in document order. It fails only when no rule could be evaluated.
	Snapshot(ctx context.Context) (Snapshot, error)
	// RawPageText returns the visible text of the page body.
	RawPageText(ctx context.Context) (string, error)
}

// Submitter sends an outbound message through the page UI.
type Submitter interface {
	Submit(ctx context.Context, message string) error
}
