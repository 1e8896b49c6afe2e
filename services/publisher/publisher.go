package publisher

import "context"

// Publisher represents a service for publishing availability reports
type Publisher interface {
	// Publish publishes a message to the report stream
	Publish(ctx context.Context, key string, message []byte) error

	// TrimStreams trims the stream to the configured maximum length
	TrimStreams(ctx context.Context) error

	// Close closes the publisher connection
	Close() error
}
