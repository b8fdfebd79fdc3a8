package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/boundary-compare/internal/osm"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Print the Overpass QL used to fetch OpenStreetMap boundaries",
	Long:  "Prints the query the comparison sends to the Overpass endpoint, for inspection in overpass-turbo.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, err := fmt.Fprint(cmd.OutOrStdout(), osm.BuildQuery(cfg.Overpass))
		return err
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)
}
