package jobstep

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

const defaultMemoryMiB = 1024

// memoryMiB converts a compute.memory value to MiB. Bare numbers are GiB;
// strings may carry units ("4 GiB", "1000 MB").
func memoryMiB(v any) (int64, error) {
	var mib int64

	switch m := v.(type) {
	case nil:
		return defaultMemoryMiB, nil
	case int:
		mib = int64(m) * 1024
	case int64:
		mib = m * 1024
	case float64:
		mib = int64(m * 1024)
	case string:
		s := strings.TrimSpace(m)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			mib = int64(f * 1024)
			break
		}
		b, err := humanize.ParseBytes(s)
		if err != nil {
			return 0, fmt.Errorf("memory %q: %w", m, err)
		}
		mib = int64(b / humanize.MiByte)
	default:
		return 0, fmt.Errorf("memory: unsupported value %v (%T)", v, v)
	}

	if mib <= 0 {
		return 0, fmt.Errorf("memory must be at least 1 MiB, got %v", v)
	}
	return mib, nil
}
