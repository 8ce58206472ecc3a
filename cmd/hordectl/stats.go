package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// statsCmd surfaces the Registry aggregates of spec §4.1
// (top_contributor, top_server, get_total_usage, get_request_avg)
// informationally. These are deliberately not new HTTP endpoints — §6's
// endpoint table is closed — so the CLI derives them client-side from
// the existing /usage, /contributions, and /servers responses
// (SPEC_FULL.md §4 supplemented features).
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cluster-wide aggregates (top contributor, top server, usage totals)",
	RunE: func(cmd *cobra.Command, args []string) error {
		var usage, contrib map[string]int64
		if err := fetchJSON("/usage", &usage); err != nil {
			return err
		}
		if err := fetchJSON("/contributions", &contrib); err != nil {
			return err
		}
		var cards []workerCardDTO
		if err := fetchJSON("/servers", &cards); err != nil {
			return err
		}

		topContributor, topContribTokens := "", int64(-1)
		for alias, tokens := range contrib {
			if tokens > topContribTokens {
				topContributor, topContribTokens = alias, tokens
			}
		}

		var topServer workerCardDTO
		topServerFound := false
		for _, c := range cards {
			if !topServerFound || c.Contributions > topServer.Contributions {
				topServer, topServerFound = c, true
			}
		}

		var totalUsage int64
		for _, tokens := range usage {
			totalUsage += tokens
		}
		avg := float64(0)
		if len(usage) > 0 {
			avg = float64(totalUsage) / float64(len(usage))
		}

		fmt.Printf("total_usage_tokens=%d request_avg_tokens=%.2f\n", totalUsage, avg)
		if topContributor != "" {
			fmt.Printf("top_contributor=%s tokens=%d\n", topContributor, topContribTokens)
		} else {
			fmt.Println("top_contributor=<none>")
		}
		if topServerFound {
			fmt.Printf("top_server=%s (%s) tokens=%d\n", topServer.Name, topServer.ID, topServer.Contributions)
		} else {
			fmt.Println("top_server=<none>")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
