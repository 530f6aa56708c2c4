// Package jsonutil tolerates the loose JSON that LLMs emit, where
// numeric fields arrive quoted or as integral floats.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FlexibleIntValue converts a json.RawMessage to an int, accepting
// numbers, quoted numbers ("7") and integral floats (7.0). Null,
// empty and anything else are errors.
func FlexibleIntValue(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("missing value")
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		if numVal != math.Trunc(numVal) {
			return 0, fmt.Errorf("non-integral number %v", numVal)
		}
		return int(numVal), nil
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		n, err := strconv.Atoi(strings.TrimSpace(strVal))
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", strVal)
		}
		return n, nil
	}

	return 0, fmt.Errorf("unsupported value: %s", string(raw))
}
