package commands

import (
	"encoding/json"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"bidsmapper/internal/common"
	"bidsmapper/internal/engine"
	"bidsmapper/internal/errors"
	"bidsmapper/internal/logger"
	"bidsmapper/internal/template"
)

// MapCmd maps a batch of source files.
var MapCmd = &cobra.Command{
	Use:   "map",
	Short: "Classify source files and resolve their identities",
	Long: `Map every source of a manifest (--manifest) or a tree of JSON sidecars
(--sidecars) with the template. Files a prior study bidsmap (--prior) knows
are decided by it; everything else falls through to the template.

With --out the distinct acquisitions seen are written as a study bidsmap
that can be passed as --prior to the next run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		templatePath, _ := cmd.Flags().GetString("template")
		priorPath, _ := cmd.Flags().GetString("prior")
		manifest, _ := cmd.Flags().GetString("manifest")
		sidecars, _ := cmd.Flags().GetString("sidecars")
		out, _ := cmd.Flags().GetString("out")
		jsonOutput, _ := cmd.Flags().GetBool("json")
		partial, _ := cmd.Flags().GetBool("partial")

		if manifest == "" && sidecars == "" {
			return errors.New("one of --manifest or --sidecars is required")
		}

		primary, err := template.LoadFile(templatePath, templateOptions(partial)...)
		if err != nil {
			return err
		}

		opts := []engine.Option{
			engine.WithPrefixes(cfg.Naming.SubjectPrefix, cfg.Naming.SessionPrefix),
			engine.WithSanitize(cfg.Naming.Sanitize),
			engine.WithSuffixEntity(cfg.Naming.SuffixEntity),
			engine.WithWorkers(cfg.Engine.Workers),
			engine.WithCacheSize(cfg.Engine.CacheSize),
			engine.WithPreferences(cfg.Engine.Preferences),
			engine.WithLogger(logger.ComponentLogger("engine")),
		}

		if priorPath != "" {
			prior, err := template.LoadFile(priorPath, templateOptions(true)...)
			if err != nil {
				return err
			}

			opts = append(opts, engine.WithPrior(prior))
		}

		files, err := readSources(manifest, sidecars)
		if err != nil {
			return err
		}

		e, err := engine.New(primary, opts...)
		if err != nil {
			return err
		}

		report, err := e.MapAll(cmd.Context(), files)
		if err != nil {
			return err
		}

		if jsonOutput {
			if err := printJSON(cmd, report); err != nil {
				return err
			}
		} else {
			if err := printTable(report); err != nil {
				return err
			}

			printDiagnostics(report.Diagnostics)
		}

		if out != "" {
			st, err := e.SampleTemplate()
			if err != nil {
				return errors.Wrap(err, "failed to build study bidsmap")
			}

			if err := template.WriteFile(st, out); err != nil {
				return err
			}

			if !jsonOutput {
				pterm.Success.Printf("Wrote %d samples to %s\n", st.RuleCount(), out)
			}
		}

		if !report.Diagnostics.IsValid() {
			return errors.Newf("%d of %d sources could not be mapped", len(report.Diagnostics.Errors), len(files))
		}

		return nil
	},
}

func init() {
	MapCmd.Flags().StringP("template", "t", "", "Template file")
	MapCmd.Flags().String("prior", "", "Study bidsmap consulted before the template")
	MapCmd.Flags().String("manifest", "", "YAML or JSON manifest of sources")
	MapCmd.Flags().String("sidecars", "", "Directory of JSON sidecars")
	MapCmd.Flags().StringP("out", "o", "", "Write the study bidsmap to this file")
	MapCmd.Flags().BoolP("json", "j", false, "Output decisions as JSON")
	MapCmd.Flags().Bool("partial", false, "Accept a template without a catch-all rule")
	_ = MapCmd.MarkFlagRequired("template")
}

func printTable(report *engine.Report) error {
	data := pterm.TableData{{"Source", "Group", "Identity", "Provenance"}}

	for _, d := range report.Decisions {
		group := d.Group
		if d.Discarded {
			group = pterm.Gray(group)
		} else if d.Prior {
			group = pterm.LightGreen(group)
		}

		data = append(data, []string{d.Source, group, d.Identity.Name(), common.FirstNonEmpty(d.Identity.Provenance, d.Identity.Rule)})
	}

	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return errors.Wrap(err, "failed to render table")
	}

	summary := make([]string, 0, len(report.Counts))
	for _, name := range sortedKeys(report.Counts) {
		summary = append(summary, fmt.Sprintf("%s=%d", name, report.Counts[name]))
	}

	pterm.Info.Printf("%d sources mapped in %s (%v)\n", len(report.Decisions), report.Duration, summary)

	return nil
}

type jsonDecision struct {
	Source     string            `json:"source"`
	Group      string            `json:"group"`
	Identity   string            `json:"identity"`
	Entities   map[string]string `json:"entities"`
	Provenance string            `json:"provenance"`
	Rule       string            `json:"rule"`
	Discarded  bool              `json:"discarded,omitempty"`
	Prior      bool              `json:"prior,omitempty"`
}

type jsonReport struct {
	SessionID   string         `json:"session_id"`
	Decisions   []jsonDecision `json:"decisions"`
	Counts      map[string]int `json:"counts"`
	Diagnostics []string       `json:"diagnostics,omitempty"`
}

func printJSON(cmd *cobra.Command, report *engine.Report) error {
	out := jsonReport{
		SessionID: report.SessionID,
		Decisions: make([]jsonDecision, 0, len(report.Decisions)),
		Counts:    report.Counts,
	}

	for _, d := range report.Decisions {
		out.Decisions = append(out.Decisions, jsonDecision{
			Source:     d.Source,
			Group:      d.Group,
			Identity:   d.Identity.Key(),
			Entities:   d.Identity.Entities.Map(),
			Provenance: d.Identity.Provenance,
			Rule:       d.Identity.Rule,
			Discarded:  d.Discarded,
			Prior:      d.Prior,
		})
	}

	for _, diag := range report.Diagnostics.All() {
		out.Diagnostics = append(out.Diagnostics, diag.String())
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to format JSON")
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))

	return err
}
