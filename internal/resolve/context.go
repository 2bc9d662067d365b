package resolve

import (
	"path/filepath"
	"strings"
)

// Default folder prefixes of subject and session labels.
const (
	DefaultSubjectPrefix = "sub-"
	DefaultSessionPrefix = "ses-"
)

// Context carries the per-file state of a resolution: the scope derived
// from the source path, caller preferences and the shared counter table.
// Path labels live here and never in the attribute mapping.
type Context struct {
	// SourcePath is the path of the source file.
	SourcePath string
	// Subject and Session are the labels taken from SourcePath.
	Subject string
	Session string
	// Preferences selects a value for list-of-allowed-values entities when
	// the template does not. A preference that is not one of the resolved
	// candidates is ignored.
	Preferences map[string]string
	// Counters is the run-counter table shared by the whole session.
	Counters *Counters
	// Sanitize strips every resolved value down to ASCII letters and
	// digits. Counter keys are built from the sanitized values, so values
	// that differ only in punctuation share one counter.
	Sanitize bool
}

// NewContext builds the context of one source file. Subject and session
// labels are extracted once, here, before any entity is resolved.
func NewContext(path, subjectPrefix, sessionPrefix string, counters *Counters) *Context {
	sub, ses := PathLabels(path, subjectPrefix, sessionPrefix)

	return &Context{
		SourcePath: path,
		Subject:    sub,
		Session:    ses,
		Counters:   counters,
	}
}

// PathLabels extracts subject and session labels from the directory
// structure of path: the first component starting with each prefix, with
// the prefix stripped. Missing labels are empty.
//
//	PathLabels("/raw/sub-01/ses-pre/007/IM1", "sub-", "ses-") // "01", "pre"
func PathLabels(path, subjectPrefix, sessionPrefix string) (subject, session string) {
	parts := strings.Split(filepath.ToSlash(path), "/")

	// The last component is the file itself.
	if len(parts) > 0 {
		parts = parts[:len(parts)-1]
	}

	for _, p := range parts {
		if subject == "" && subjectPrefix != "" && strings.HasPrefix(p, subjectPrefix) {
			subject = strings.TrimPrefix(p, subjectPrefix)
			continue
		}

		if session == "" && sessionPrefix != "" && strings.HasPrefix(p, sessionPrefix) {
			session = strings.TrimPrefix(p, sessionPrefix)
		}
	}

	return subject, session
}
