package notifier

import (
	"context"
	"fmt"
	"io"
	"os"
)

// DryRunNotifier prints messages instead of sending them
type DryRunNotifier struct {
	out io.Writer
}

// NewDryRunNotifier creates a dry-run notifier writing to stdout
func NewDryRunNotifier() *DryRunNotifier {
	return &DryRunNotifier{out: os.Stdout}
}

// Send prints the message that would be delivered
func (n *DryRunNotifier) Send(ctx context.Context, text string) error {
	fmt.Fprintln(n.out, "--- Message ---")
	fmt.Fprintln(n.out, text)
	fmt.Fprintf(n.out, "\n(Length: %d characters)\n\n", len([]rune(text)))
	return nil
}

// GetType returns "dry-run"
func (n *DryRunNotifier) GetType() string {
	return "dry-run"
}
