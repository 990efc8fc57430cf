package patharchive

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/foldback/foldback/pkg/util"
)

// Format identifies the archive container and compression codec.
type Format string

const (
	Zip    Format = "zip"
	TarGz  Format = "tar.gz"
	TarZst Format = "tar.zst"
)

var formatExtensions = map[Format]string{
	Zip:    ".zip",
	TarGz:  ".tar.gz",
	TarZst: ".tar.zst",
}

var extensionFormats = util.InvertMap(formatExtensions)

// ParseFormat validates and normalizes a format string.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := formatExtensions[f]; !ok {
		return "", fmt.Errorf("invalid archive format: %q. Must be one of 'zip', 'tar.gz' or 'tar.zst'", s)
	}
	return f, nil
}

// FormatFromExtension maps a file extension (".zip", ".tar.gz", ".tar.zst")
// back to its Format.
func FormatFromExtension(ext string) (Format, bool) {
	f, ok := extensionFormats[strings.ToLower(ext)]
	return f, ok
}

// Extension returns the file extension for the format, including the leading
// dot.
func (f Format) Extension() string {
	return formatExtensions[f]
}

func (f Format) String() string {
	return string(f)
}

func (f Format) MarshalJSON() ([]byte, error) {
	if _, ok := formatExtensions[f]; !ok {
		return nil, fmt.Errorf("invalid archive format: %q", string(f))
	}
	return json.Marshal(string(f))
}

func (f *Format) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseFormat(s)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
