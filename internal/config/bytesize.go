package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ByteSize is a byte count written in config as "20MiB", "1GiB" or a plain integer.
type ByteSize int64

const (
	KiB ByteSize = 1 << (10 * (iota + 1))
	MiB
	GiB
)

var byteUnits = []struct {
	suffix string
	mult   ByteSize
}{
	{"gib", GiB}, {"gb", GiB}, {"g", GiB},
	{"mib", MiB}, {"mb", MiB}, {"m", MiB},
	{"kib", KiB}, {"kb", KiB}, {"k", KiB},
	{"b", 1},
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *ByteSize) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	if s == "" {
		return fmt.Errorf("empty byte size")
	}

	mult := ByteSize(1)
	for _, u := range byteUnits {
		if strings.HasSuffix(s, u.suffix) {
			mult = u.mult
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			break
		}
	}

	n, err := strconv.ParseFloat(s, 64)
	if err != nil || n < 0 {
		return fmt.Errorf("invalid byte size %q", string(text))
	}
	*b = ByteSize(n * float64(mult))
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b ByteSize) String() string {
	switch {
	case b >= GiB && b%GiB == 0:
		return fmt.Sprintf("%dGiB", b/GiB)
	case b >= MiB && b%MiB == 0:
		return fmt.Sprintf("%dMiB", b/MiB)
	case b >= KiB && b%KiB == 0:
		return fmt.Sprintf("%dKiB", b/KiB)
	default:
		return strconv.FormatInt(int64(b), 10)
	}
}

// Int64 returns b as a plain byte count.
func (b ByteSize) Int64() int64 { return int64(b) }
