package protocol

import (
	"encoding/json"
	"errors"
)

// ErrEmptyPayload reports an envelope without a payload.
var ErrEmptyPayload = errors.New("empty payload")

// DecodePayload converts a generically decoded payload into target.
func DecodePayload(payload interface{}, target any) error {
	if payload == nil {
		return ErrEmptyPayload
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}
