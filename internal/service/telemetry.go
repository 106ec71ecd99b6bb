package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/garirakho/gate-backend/internal/apperror"
	"github.com/garirakho/gate-backend/internal/model"
)

// DecodeTelemetry parses a device reading leniently, the way gate
// controllers actually send it.
//
// COERCIONS:
//   - entranceCm, msgCount: a number (truncated toward zero), a numeric
//     string, a boolean (0/1), or null/absent/"" (0). Anything else is a
//     validation error.
//   - exitApproved and each slots element: truthiness. null, false, 0, "",
//     [] and {} are false; everything else is true.
//   - slots: an array, or null/absent (empty). Anything else is a
//     validation error.
//
// deviceId is a string, or an integer which is used in its decimal form.
// null and absent give ""; any other type is a validation error.
func DecodeTelemetry(payload []byte) (deviceID string, reading model.Telemetry, err error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var body map[string]any
	if err := dec.Decode(&body); err != nil || body == nil {
		return "", reading, apperror.ValidationFailed("body", "body must be a JSON object")
	}
	if _, err := dec.Token(); err != io.EOF {
		return "", reading, apperror.ValidationFailed("body", "body must contain a single JSON object")
	}

	if deviceID, err = coerceDeviceID(body["deviceId"]); err != nil {
		return "", reading, err
	}

	if reading.EntranceCm, err = coerceInt("entranceCm", body["entranceCm"]); err != nil {
		return "", reading, err
	}
	if reading.MsgCount, err = coerceInt("msgCount", body["msgCount"]); err != nil {
		return "", reading, err
	}
	reading.ExitApproved = truthy(body["exitApproved"])

	switch slots := body["slots"].(type) {
	case nil:
		reading.Slots = []bool{}
	case []any:
		reading.Slots = make([]bool, len(slots))
		for i, s := range slots {
			reading.Slots[i] = truthy(s)
		}
	default:
		return "", reading, apperror.ValidationFailed("slots", "slots must be an array")
	}

	return deviceID, reading, nil
}

func coerceDeviceID(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case json.Number:
		if n, err := strconv.ParseInt(string(x), 10, 64); err == nil {
			return strconv.FormatInt(n, 10), nil
		}
	}
	return "", apperror.ValidationFailed("deviceId", "deviceId must be a string")
}

func coerceInt(field string, v any) (int64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case json.Number:
		return numberToInt(field, string(x))
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, nil
		}
		return numberToInt(field, s)
	default:
		return 0, apperror.ValidationFailed(field, field+" must be a number")
	}
}

// numberToInt parses an integer or decimal literal, truncating toward zero.
func numberToInt(field, s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, apperror.ValidationFailed(field, fmt.Sprintf("%s: %q is not a number", field, s))
	}
	f = math.Trunc(f)
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, apperror.ValidationFailed(field, field+" is out of range")
	}
	return int64(f), nil
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case json.Number:
		f, err := strconv.ParseFloat(string(x), 64)
		return err != nil || f != 0
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		return true
	}
}
