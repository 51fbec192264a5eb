package connection

import "context"

// Transport discovers and opens gateways of one Kind. Implementations may
// return errors and even panic; the Manager contains both.
type Transport interface {
	Kind() Kind

	// Scan lists reachable gateways until ctx is done. It returns
	// ErrUnavailable when the platform lacks the capability.
	Scan(ctx context.Context) ([]*Device, error)

	// Connect opens a link to dev.
	Connect(ctx context.Context, dev *Device) (Link, error)
}

// Link is an open channel to a gateway.
type Link interface {
	// Query requests a mode 01 PID and returns its raw data bytes, which may
	// be longer than the parameter needs.
	Query(ctx context.Context, pid string) ([]byte, error)

	// TroubleCodes reads the stored diagnostic trouble codes (mode 03).
	TroubleCodes(ctx context.Context) ([]string, error)

	Close() error
}
