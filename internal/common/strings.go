package common

import "strings"

// UnknownStr is the String() value of unrecognized enum members.
const UnknownStr = "unknown"

// FirstNonEmpty returns the first argument that is not blank, or "".
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}

	return ""
}
