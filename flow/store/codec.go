package store

import (
	"encoding/json"
	"fmt"

	"github.com/dshills/taskgraph-go/flow"
)

// encodeResult serializes an atom result for a relational row. Failures
// are flattened to their message plus the event that produced them; plain
// values are JSON-encoded, so decoded values follow JSON typing (numbers
// come back as float64).
func encodeResult(result any) (payload string, isFailure bool, failureEvent string, err error) {
	if f, ok := result.(*flow.Failure); ok {
		return f.Err.Error(), true, string(f.Event), nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return "", false, "", fmt.Errorf("encode result: %w", err)
	}
	return string(data), false, "", nil
}

// decodeResult is the inverse of encodeResult.
func decodeResult(name, payload string, isFailure bool, failureEvent string) (any, error) {
	if isFailure {
		return flow.RestoreFailure(name, flow.Event(failureEvent), payload), nil
	}
	var value any
	if err := json.Unmarshal([]byte(payload), &value); err != nil {
		return nil, fmt.Errorf("decode result for %q: %w", name, err)
	}
	return value, nil
}
