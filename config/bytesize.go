package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// ByteSize is a size in bytes, parsed from strings like "128M", "8MiB",
// "16k", or "1048576". Single letter K, M, and G suffixes are binary
// (powers of 1024). Other suffixes follow humanize.ParseBytes, e.g. "MB" is
// 1000*1000.
type ByteSize uint64

func ParseByteSize(s string) (ByteSize, error) {
	s = strings.TrimSpace(s)
	if s == `` {
		return 0, fmt.Errorf("config: invalid byte size: empty")
	}
	if v, err := strconv.ParseUint(s, 10, 64); err == nil {
		return ByteSize(v), nil
	}
	if last := s[len(s)-1]; len(s) > 1 && s[len(s)-2] >= '0' && s[len(s)-2] <= '9' {
		switch last {
		case 'k', 'K', 'm', 'M', 'g', 'G':
			s += `iB`
		}
	}
	v, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("config: invalid byte size %q: %w", s, err)
	}
	return ByteSize(v), nil
}

// String formats using binary units, e.g. "128 MiB".
func (x ByteSize) String() string {
	return humanize.IBytes(uint64(x))
}

// Unpack implements the go-ucfg StringUnpacker interface.
func (x *ByteSize) Unpack(s string) error {
	v, err := ParseByteSize(s)
	if err != nil {
		return err
	}
	*x = v
	return nil
}

// Set implements pflag.Value.
func (x *ByteSize) Set(s string) error { return x.Unpack(s) }

// Type implements pflag.Value.
func (x *ByteSize) Type() string { return `size` }

// Int converts to int, saturating at the maximum int.
func (x ByteSize) Int() int {
	const maxInt = int(^uint(0) >> 1)
	if uint64(x) > uint64(maxInt) {
		return maxInt
	}
	return int(x)
}
