// Package version holds the four component version number stamped into
// projects: major.minor.build.revision.
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Size is the number of components in an Info.
const Size = 4

var (
	ErrMalformedComponent = errors.New("malformed version component")
	ErrTooManyComponents  = errors.New("too many version components")
	ErrIncompleteVersion  = errors.New("incomplete version")
)

// Info is an immutable version value. Two Infos are equal when all four
// components are equal.
type Info struct {
	Major    uint64
	Minor    uint64
	Build    uint64
	Revision uint64
}

func New(major, minor, build, revision uint64) Info {
	return Info{Major: major, Minor: minor, Build: build, Revision: revision}
}

// String renders the canonical dotted form, e.g. 1.2.340123.1030.
func (v Info) String() string {
	var b strings.Builder
	for i, c := range v.Components() {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.FormatUint(c, 10))
	}
	return b.String()
}

func (v Info) Components() [Size]uint64 {
	return [Size]uint64{v.Major, v.Minor, v.Build, v.Revision}
}

// Overlay returns base with its leading components replaced by parts, left
// to right. Components past len(parts) keep the value from base.
func Overlay(base Info, parts []uint64) Info {
	c := base.Components()
	copy(c[:], parts)
	return Info{Major: c[0], Minor: c[1], Build: c[2], Revision: c[3]}
}

// Parse splits text on '.' and parses between one and Size strict decimal
// components. The result is not padded.
func Parse(text string) ([]uint64, error) {
	pieces := strings.Split(text, ".")
	if len(pieces) > Size {
		return nil, fmt.Errorf("%w: expected at most %d, got %d in %q", ErrTooManyComponents, Size, len(pieces), text)
	}
	parts := make([]uint64, 0, len(pieces))
	for _, piece := range pieces {
		n, err := ParseComponent(piece)
		if err != nil {
			return nil, err
		}
		parts = append(parts, n)
	}
	return parts, nil
}

// ParseFull parses text that must carry exactly Size components.
func ParseFull(text string) (Info, error) {
	parts, err := Parse(text)
	if err != nil {
		return Info{}, err
	}
	if len(parts) != Size {
		return Info{}, fmt.Errorf("%w: expected %d components, got %d in %q", ErrIncompleteVersion, Size, len(parts), text)
	}
	return Overlay(Info{}, parts), nil
}

// ParseComponent parses a single component. Only ASCII digits are accepted:
// no sign, no whitespace, no exponent.
func ParseComponent(token string) (uint64, error) {
	if token == "" {
		return 0, fmt.Errorf("%w: %q is empty", ErrMalformedComponent, token)
	}
	for i := 0; i < len(token); i++ {
		if token[i] < '0' || token[i] > '9' {
			return 0, fmt.Errorf("%w: %q is not a decimal number", ErrMalformedComponent, token)
		}
	}
	n, err := strconv.ParseUint(token, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is out of range", ErrMalformedComponent, token)
	}
	return n, nil
}
