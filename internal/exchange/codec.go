package exchange

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Encode serializes a value for storage.
func Encode(v any) ([]byte, error) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding value: %w", err)
	}
	return data, nil
}

// Decode deserializes a stored value into out, which must be a pointer.
func Decode(data []byte, out any) error {
	if err := sonic.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding value: %w", err)
	}
	return nil
}
