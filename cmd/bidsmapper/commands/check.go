package commands

import (
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"bidsmapper/internal/errors"
	"bidsmapper/internal/match"
	"bidsmapper/internal/template"
)

// CheckCmd validates a template.
var CheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate a bidsmap template",
	Long: `Load a template, expand its anchors and shared references, validate it
and print every diagnostic. With --manifest or --sidecars the rules are also
linted against the attribute names the sources carry.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("template")
		partial, _ := cmd.Flags().GetBool("partial")
		dump, _ := cmd.Flags().GetBool("dump")
		manifest, _ := cmd.Flags().GetString("manifest")
		sidecars, _ := cmd.Flags().GetString("sidecars")

		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "failed to read template file %s", path)
		}

		t, diags, err := template.ParseWithDiagnostics(data, templateOptions(partial)...)
		printDiagnostics(diags)

		if err != nil {
			for _, hint := range errors.GetAllHints(err) {
				pterm.Info.Println(hint)
			}

			return err
		}

		files, err := readSources(manifest, sidecars)
		if err != nil {
			return err
		}

		lint := match.Lint(t, files)
		printDiagnostics(lint)

		if dump {
			for _, g := range t.Groups() {
				spew.Fdump(cmd.OutOrStdout(), g.Name, g.Rules())
			}
		}

		pterm.Success.Printf("%s: %d groups, %d rules\n", path, len(t.Groups()), t.RuleCount())

		return nil
	},
}

func init() {
	CheckCmd.Flags().StringP("template", "t", "", "Template file")
	CheckCmd.Flags().Bool("partial", false, "Accept a template without a catch-all rule")
	CheckCmd.Flags().Bool("dump", false, "Dump the expanded rules")
	CheckCmd.Flags().String("manifest", "", "Lint against the sources of a manifest file")
	CheckCmd.Flags().String("sidecars", "", "Lint against the JSON sidecars under a directory")
	_ = CheckCmd.MarkFlagRequired("template")
}
