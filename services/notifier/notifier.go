package notifier

import "context"

// Notifier delivers one formatted message to the operator
type Notifier interface {
	// Send transmits text; a failure never aborts the check cycle
	Send(ctx context.Context, text string) error

	// GetType returns the delivery channel name for logging
	GetType() string
}
