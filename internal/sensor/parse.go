package sensor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errEmptyLine = errors.New("empty line")

// ParseReading extracts a velocity from one line of sensor output. The sensor
// firmware emits either a bare number, a CSV record whose last field is the
// velocity (uptime,magnitude,speed), or a JSON object with a "velocity" or
// "speed" key.
func ParseReading(line string) (float64, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, errEmptyLine
	}

	if strings.HasPrefix(line, "{") {
		var payload map[string]any
		if err := json.Unmarshal([]byte(line), &payload); err != nil {
			return 0, fmt.Errorf("failed to unmarshal JSON reading: %w", err)
		}
		for _, key := range []string{"velocity", "speed"} {
			raw, ok := payload[key]
			if !ok {
				continue
			}
			switch v := raw.(type) {
			case float64:
				return v, nil
			case string:
				return parseFloat(v)
			default:
				return 0, fmt.Errorf("unexpected %s type %T", key, raw)
			}
		}
		return 0, fmt.Errorf("no velocity field in %q", line)
	}

	if i := strings.LastIndex(line, ","); i >= 0 {
		line = line[i+1:]
	}
	return parseFloat(line)
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse velocity: %w", err)
	}
	return v, nil
}
