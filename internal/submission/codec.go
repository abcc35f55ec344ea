package submission

import (
	"encoding/json"
	"fmt"

	"github.com/hudsci/epcis-engine/internal/epcis"
)

// marshalErrors encodes a report's errors as the JSON array stored in the
// persistence layer's errors column.
func marshalErrors(errs []epcis.ValidationError) (string, error) {
	b, err := json.Marshal(errs)
	if err != nil {
		return "", fmt.Errorf("marshaling errors: %w", err)
	}
	return string(b), nil
}

func unmarshalErrors(raw string) ([]epcis.ValidationError, error) {
	var errs []epcis.ValidationError
	if raw == "" {
		return errs, nil
	}
	if err := json.Unmarshal([]byte(raw), &errs); err != nil {
		return nil, fmt.Errorf("unmarshaling errors: %w", err)
	}
	return errs, nil
}
