package domain

import "context"

// Channel is the interface for user-facing I/O (terminal, HTTP relay).
type Channel interface {
	Name() string
	Start(ctx context.Context, p Provider) error
	Stop() error
}
