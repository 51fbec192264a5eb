package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
)

// HandlerFunc handles the payload of one vehicle topic.
type HandlerFunc func(ctx context.Context, vehicleID string, payload []byte) error

// JSONHandler decodes the payload into T before calling handler.
func JSONHandler[T any](handler func(ctx context.Context, vehicleID string, msg *T) error) HandlerFunc {
	return func(ctx context.Context, vehicleID string, payload []byte) error {
		msg := new(T)
		if err := json.Unmarshal(payload, msg); err != nil {
			return fmt.Errorf("json unmarshal failed: %w", err)
		}
		return handler(ctx, vehicleID, msg)
	}
}
