package inject

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a four part module version.
type Version struct {
	Major, Minor, Build, Revision uint16
}

// ParseVersion parses "major[.minor[.build[.revision]]]". Missing parts are
// zero.
func ParseVersion(s string) (Version, error) {
	var v Version
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) == 0 || len(parts) > 4 || parts[0] == "" {
		return v, fmt.Errorf("invalid version %q", s)
	}

	fields := []*uint16{&v.Major, &v.Minor, &v.Build, &v.Revision}
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return Version{}, fmt.Errorf("invalid version %q: %w", s, err)
		}
		*fields[i] = uint16(n)
	}
	return v, nil
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Build, v.Revision)
}

// Identity names the injector module and the version it was built as. Patched
// modules reference the injector by this identity.
type Identity struct {
	Name    string
	Version Version
}

func (id Identity) String() string {
	return id.Name + ", Version=" + id.Version.String()
}
