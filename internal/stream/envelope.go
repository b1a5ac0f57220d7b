package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	streamKey            = []byte(`"stream"`)
	errNotAnEnvelope     = errors.New("frame has no stream member")
	errMalformedEnvelope = errors.New("malformed combined-stream envelope")
)

// unwrapEnvelope strips the combined-stream wrapper and returns the inner
// payload exactly as it appeared under "data", along with the stream name.
// A top-level object with a "stream" member is an envelope; one without a
// non-empty name or non-null data is reported as errMalformedEnvelope.
func unwrapEnvelope(frame []byte) ([]byte, string, error) {
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) == 0 || trimmed[0] != '{' || !bytes.Contains(trimmed, streamKey) {
		return nil, "", errNotAnEnvelope
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &members); err != nil {
		return nil, "", fmt.Errorf("%w: %v", errMalformedEnvelope, err)
	}
	rawName, ok := members["stream"]
	if !ok {
		return nil, "", errNotAnEnvelope
	}
	var name string
	if err := json.Unmarshal(rawName, &name); err != nil || name == "" {
		return nil, "", fmt.Errorf("%w: stream name %s", errMalformedEnvelope, bytes.TrimSpace(rawName))
	}
	data := bytes.TrimSpace(members["data"])
	if isAbsent(data) {
		return nil, "", fmt.Errorf("%w: no data for %s", errMalformedEnvelope, name)
	}
	return data, name, nil
}
