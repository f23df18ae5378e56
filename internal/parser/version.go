package parser

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is the logspec version. Parser definitions are accepted when
// their minor version matches.
const Version = "0.2.0"

// CheckVersion verifies that a definitions version is compatible with
// Version.
func CheckVersion(version string) error {
	want, err := minorVersion(Version)
	if err != nil {
		return err
	}
	got, err := minorVersion(version)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: definitions version %s, logspec version %s", ErrVersionMismatch, version, Version)
	}
	return nil
}

func minorVersion(version string) (int, error) {
	parts := strings.Split(version, ".")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: malformed version %q", ErrInvalidDefinition, version)
	}
	for _, p := range parts {
		if _, err := strconv.Atoi(p); err != nil {
			return 0, fmt.Errorf("%w: malformed version %q", ErrInvalidDefinition, version)
		}
	}
	minor, _ := strconv.Atoi(parts[1])
	return minor, nil
}
