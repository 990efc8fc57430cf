package patharchive

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
)

// Level selects the speed/size trade-off of the compressor.
type Level string

const (
	Fastest Level = "fastest"
	Default Level = "default"
	Best    Level = "best"
)

var flateLevels = map[Level]int{
	Fastest: flate.BestSpeed,
	Default: flate.DefaultCompression,
	Best:    flate.BestCompression,
}

var zstdLevels = map[Level]zstd.EncoderLevel{
	Fastest: zstd.SpeedFastest,
	Default: zstd.SpeedDefault,
	Best:    zstd.SpeedBestCompression,
}

// ParseLevel validates and normalizes a compression level string.
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := flateLevels[l]; !ok {
		return "", fmt.Errorf("invalid compression level: %q. Must be one of 'fastest', 'default' or 'best'", s)
	}
	return l, nil
}

// FlateLevel returns the deflate/gzip numeric level for l.
func (l Level) FlateLevel() int {
	if v, ok := flateLevels[l]; ok {
		return v
	}
	return flate.DefaultCompression
}

// ZstdLevel returns the zstd encoder level for l.
func (l Level) ZstdLevel() zstd.EncoderLevel {
	if v, ok := zstdLevels[l]; ok {
		return v
	}
	return zstd.SpeedDefault
}

func (l Level) String() string {
	return string(l)
}

func (l Level) MarshalJSON() ([]byte, error) {
	if _, ok := flateLevels[l]; !ok {
		return nil, fmt.Errorf("invalid compression level: %q", string(l))
	}
	return json.Marshal(string(l))
}

func (l *Level) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
