package log

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const redacted = "[REDACTED]"

// sensitiveKeys are key fragments whose values never reach the log: command
// PINs, bearer tokens and client secrets all pass through logged call sites.
var sensitiveKeys = []string{"pin", "token", "secret", "password", "authorization"}

func sensitive(key string) bool {
	key = strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

// toFields converts logr-style key/value arguments to zap fields. A bare
// zap.Field or error is accepted in key position; a trailing unpaired value is
// kept under a positional key.
func toFields(args ...any) []zap.Field {
	if len(args) == 0 {
		return nil
	}

	fields := make([]zap.Field, 0, len(args)/2+1)
	for i := 0; i < len(args); {
		switch v := args[i].(type) {
		case zap.Field:
			fields = append(fields, v)
			i++
			continue
		case error:
			fields = append(fields, zap.Error(v))
			i++
			continue
		}

		if i == len(args)-1 {
			fields = append(fields, zap.Any(fmt.Sprintf("arg#%d", i), args[i]))
			break
		}

		key, val := args[i], args[i+1]
		i += 2

		keyStr, ok := key.(string)
		switch {
		case !ok:
			fields = append(fields, zap.Any(fmt.Sprintf("invalid_key_%d", i/2), map[string]any{
				"key":   key,
				"value": val,
			}))
		case sensitive(keyStr):
			fields = append(fields, zap.String(keyStr, redacted))
		default:
			fields = append(fields, zap.Any(keyStr, val))
		}
	}

	return fields
}
