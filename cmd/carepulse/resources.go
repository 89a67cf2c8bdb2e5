package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/carepulse"
)

// resourcesCmd lists the queryable resources.
var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "List queryable resources",
	Long: `List every resource a card or fetch can query, with its path,
parameters and cache timing.

Example:
  carepulse resources`,
	Args: cobra.NoArgs,
	RunE: runResources,
}

func init() {
	rootCmd.AddCommand(resourcesCmd)
}

func runResources(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RESOURCE\tPATH\tPARAMS\tSTALE\tRETENTION")
	for _, r := range carepulse.Resources() {
		params := make([]string, 0, len(r.Params))
		for _, p := range r.Params {
			params = append(params, fmt.Sprintf("%s (%s)", p.Name, p.Rule))
		}
		paramList := strings.Join(params, ", ")
		if paramList == "" {
			paramList = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.Name, r.Path, paramList, r.Config.StaleTime, r.Config.CacheRetention)
	}
	return w.Flush()
}
