package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show per-user requested-token usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		var usage map[string]int64
		if err := fetchJSON("/usage", &usage); err != nil {
			return err
		}
		return printAliasMap(usage)
	},
}

var contributionsCmd = &cobra.Command{
	Use:   "contributions",
	Short: "Show per-user produced-token contributions",
	RunE: func(cmd *cobra.Command, args []string) error {
		var contrib map[string]int64
		if err := fetchJSON("/contributions", &contrib); err != nil {
			return err
		}
		return printAliasMap(contrib)
	},
}

func printAliasMap(m map[string]int64) error {
	aliases := make([]string, 0, len(m))
	for alias := range m {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		fmt.Printf("%-40s %d\n", alias, m[alias])
	}
	return nil
}

func init() {
	rootCmd.AddCommand(usageCmd)
	rootCmd.AddCommand(contributionsCmd)
}
