package cgroup

import (
	"fmt"
	"strconv"
	"strings"

	cerrors "bento/errors"
)

// Size is a parsed byte-count limit. It is either a concrete byte count or
// the "max" sentinel, kept as a distinct flag rather than folded into a
// numeric sentinel: section 6 requires "max" to pass through verbatim, and
// the kernel rejects a literal "-1" written to files like memory.max.
type Size struct {
	Bytes int64
	IsMax bool
}

// String renders the value the way it must be written to a cgroup v2
// controller file: "max" verbatim, or the decimal byte count.
func (s Size) String() string {
	if s.IsMax {
		return "max"
	}
	return strconv.FormatInt(s.Bytes, 10)
}

// ParseSize parses a byte-count flag value like "256M", "300000", or "max".
// Suffixes K/M/G are binary (powers of 1024), matching cgroup v2's own
// convention for files such as memory.max.
func ParseSize(raw string) (Size, error) {
	raw = strings.TrimSpace(raw)
	if raw == "max" {
		return Size{IsMax: true}, nil
	}
	if raw == "" {
		return Size{}, cerrors.New(cerrors.ErrConfigInvalid, "parse size", "empty value")
	}

	mult := int64(1)
	suffix := raw[len(raw)-1]
	numeric := raw
	switch suffix {
	case 'k', 'K':
		mult = 1024
		numeric = raw[:len(raw)-1]
	case 'm', 'M':
		mult = 1024 * 1024
		numeric = raw[:len(raw)-1]
	case 'g', 'G':
		mult = 1024 * 1024 * 1024
		numeric = raw[:len(raw)-1]
	}

	n, err := strconv.ParseInt(numeric, 10, 64)
	if err != nil {
		return Size{}, cerrors.WrapWithDetail(err, cerrors.ErrConfigInvalid, "parse size", fmt.Sprintf("invalid value %q", raw))
	}
	return Size{Bytes: n * mult}, nil
}
