package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/fractal/internal/branching"
)

var (
	policiesDepth int
	policiesWidth int
)

var policiesCmd = &cobra.Command{
	Use:   "policies",
	Short: "Compare branching policies for a tree shape",
	Long: `Print, for every branching policy, the number of agents on each layer
and the total a fully delegating tree would execute.`,
	RunE: runPolicies,
}

func init() {
	policiesCmd.Flags().IntVarP(&policiesDepth, "depth", "d", 3, "Tree depth, root included")
	policiesCmd.Flags().IntVarP(&policiesWidth, "width", "w", 3, "Maximum children per agent")
}

func runPolicies(cmd *cobra.Command, args []string) error {
	if policiesDepth < 1 || policiesWidth < 1 {
		return fmt.Errorf("depth and width must be at least 1")
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "POLICY\tCHILDREN PER LAYER\tAGENTS PER LAYER\tTOTAL")
	for _, p := range branching.All {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			p,
			joinInts(branching.ChildCounts(policiesDepth, policiesWidth, p)),
			joinInts(branching.LayerCounts(policiesDepth, policiesWidth, p)),
			formatNumber(branching.TotalAgents(policiesDepth, policiesWidth, p)),
		)
	}
	return tw.Flush()
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, " ")
}
