// Package jsoncodec is the single JSON entry point for the relay: bus bodies,
// replies and progress records all go through sonic configured for
// encoding/json compatibility.
package jsoncodec

import (
	"bytes"
	"encoding/json"

	"github.com/bytedance/sonic"
)

// RawMessage defers decoding of a nested value until its target shape is known.
type RawMessage = json.RawMessage

var defaultConfig = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

// UnmarshalString decodes string-typed bus payloads without copying through []byte.
func UnmarshalString(data string, v any) error {
	return defaultConfig.UnmarshalFromString(data, v)
}

// IsNull reports whether raw is absent or the JSON literal null.
func IsNull(raw RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
