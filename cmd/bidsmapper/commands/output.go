package commands

import (
	"sort"

	"github.com/pterm/pterm"

	"bidsmapper/internal/diagnostic"
	"bidsmapper/internal/errors"
	"bidsmapper/internal/source"
)

// printDiagnostics prints every diagnostic with a severity prefix.
func printDiagnostics(d *diagnostic.Diagnostics) {
	if d == nil {
		return
	}

	for _, e := range d.Errors {
		pterm.Error.Println(e.String())
	}

	for _, w := range d.Warnings {
		pterm.Warning.Println(w.String())
	}

	for _, i := range d.Infos {
		pterm.Info.Println(i.String())
	}
}

// readSources loads the batch named by the --manifest or --sidecars flag.
func readSources(manifest, sidecars string) ([]source.File, error) {
	switch {
	case manifest != "" && sidecars != "":
		return nil, errors.New("--manifest and --sidecars are mutually exclusive")
	case manifest != "":
		return source.LoadManifest(manifest)
	case sidecars != "":
		return source.ScanSidecars(sidecars)
	default:
		return nil, nil
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
