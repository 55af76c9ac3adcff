package journal

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/stackline/internal/ir"
)

// marshalArgs converts edit arguments to canonical JSON TEXT (RFC 8785) so
// the stored text is byte-stable across runs.
func marshalArgs(args ir.IRObject) (string, error) {
	if args == nil {
		args = ir.IRObject{}
	}
	data, err := ir.MarshalCanonical(args)
	if err != nil {
		return "", fmt.Errorf("marshal args: %w", err)
	}
	return string(data), nil
}

// unmarshalArgs parses stored arguments. Integers go through json.Number so
// nanosecond durations keep full precision.
func unmarshalArgs(data string) (ir.IRObject, error) {
	if data == "" || data == "{}" {
		return ir.IRObject{}, nil
	}
	var obj ir.IRObject
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal args: %w", err)
	}
	return obj, nil
}

func verifyDigest(rec ir.EditRecord, want string) error {
	got, err := ir.EditDigest(rec)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("digest %s, stored %s", got[:12], want[:min(12, len(want))])
	}
	return nil
}
