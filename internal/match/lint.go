package match

import (
	"fmt"
	"sort"

	"bidsmapper/internal/common"
	"bidsmapper/internal/diagnostic"
	"bidsmapper/internal/source"
	"bidsmapper/internal/template"
)

// Lint compares the attribute names used by the template's rules with the
// attribute names carried by files. A constrained attribute that no file
// carries can only ever compare as the empty string, which is usually a
// typo; it is reported as a warning with close known names.
//
// Lint needs a sample of sources to compare against and reports nothing
// when files is empty.
func Lint(t *template.Template, files []source.File) *diagnostic.Diagnostics {
	res := &diagnostic.Diagnostics{}
	if t == nil || common.IsEmpty(files) {
		return res
	}

	seen := map[string]struct{}{}
	for _, f := range files {
		for k := range f.Attributes {
			seen[k] = struct{}{}
		}
	}

	known := make([]string, 0, len(seen))
	for k := range seen {
		known = append(known, k)
	}

	sort.Strings(known)

	for _, g := range t.Groups() {
		for _, r := range g.Rules() {
			for _, e := range r.Attributes {
				if e.Pattern.Kind == template.PatternAbsent {
					continue
				}

				if _, ok := seen[e.Name]; ok {
					continue
				}

				res.AddWarning("unknown_attribute",
					fmt.Sprintf("no source carries this attribute; pattern %s compares against an empty value", e.Pattern.Kind),
					r.ID(), e.Name, Suggest(e.Name, known)...)
			}
		}
	}

	return res
}
