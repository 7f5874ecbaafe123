package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode <place name>",
	Short: "Resolve a place name to coordinates",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("geocode"); err != nil {
			return err
		}
		name := strings.Join(args, " ")

		res, err := initGeocoder().Geocode(cmd.Context(), name)
		if err != nil {
			return eris.Wrap(err, "geocode")
		}
		if !res.Matched {
			return eris.Errorf("no match for %q", name)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	rootCmd.AddCommand(geocodeCmd)
}
