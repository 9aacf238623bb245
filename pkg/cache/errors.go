package cache

import (
	"errors"
	"fmt"
	"strings"
)

// Errors returned by cache layers.
var (
	// ErrKeyNotFound is returned when a key is not in the layer.
	ErrKeyNotFound = errors.New("cache: key not found")

	// ErrInvalidKey is returned for empty, oversized or malformed keys.
	ErrInvalidKey = errors.New("cache: invalid key")

	// ErrInvalidValue is returned for values a layer cannot store.
	ErrInvalidValue = errors.New("cache: invalid value")

	// ErrLayerUnavailable is returned when a layer is closed or unreachable.
	ErrLayerUnavailable = errors.New("cache: layer unavailable")
)

// IsNotFound reports whether err is a cache miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}

// IsUnavailable reports whether err means the layer could not be used.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrLayerUnavailable)
}

// ClassifyError returns a short label for err, for logs.
func ClassifyError(err error) string {
	if err == nil {
		return "none"
	}

	switch {
	case errors.Is(err, ErrKeyNotFound):
		return "key_not_found"
	case errors.Is(err, ErrLayerUnavailable):
		return "unavailable"
	case errors.Is(err, ErrInvalidKey):
		return "invalid_key"
	case errors.Is(err, ErrInvalidValue):
		return "invalid_value"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "connection", "connect", "dial"):
		return "connection"
	case containsAny(msg, "marshal", "unmarshal", "decode", "encode"):
		return "serialization"
	default:
		return "other"
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// WrapError adds the layer and operation to err.
func WrapError(err error, layer, operation string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("cache layer %s %s: %w", layer, operation, err)
}
