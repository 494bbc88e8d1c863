package main

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fer004/Sensores/internal/classify"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List classification profiles",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("profiles"); err != nil {
			return err
		}
		profiles, err := loadProfiles()
		if err != nil {
			return err
		}
		formatProfiles(os.Stdout, profiles.Profiles())
		return nil
	},
}

func formatProfiles(out io.Writer, profiles []classify.Profile) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tPOLLUTANTS\tBANDS\tNO_DATA")
	_, _ = fmt.Fprintln(w, "----\t----------\t-----\t-------")

	for _, p := range profiles {
		pols := "all"
		if len(p.Pollutants) > 0 {
			names := make([]string, len(p.Pollutants))
			for i, pol := range p.Pollutants {
				names[i] = string(pol)
			}
			pols = strings.Join(names, ",")
		}

		bands := make([]string, len(p.Bands))
		for i, b := range p.Bands {
			bound := "inf"
			if !math.IsInf(b.UpperBound, 1) {
				bound = fmt.Sprintf("%g", b.UpperBound)
			}
			bands[i] = fmt.Sprintf("%s<=%s", b.Label, bound)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Name, pols, strings.Join(bands, " | "), p.NoData)
	}
	_ = w.Flush()
}

func init() {
	rootCmd.AddCommand(profilesCmd)
}
