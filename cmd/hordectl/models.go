package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models currently available across non-stale workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		var models []string
		if err := fetchJSON("/models", &models); err != nil {
			return err
		}
		for _, m := range models {
			fmt.Println(m)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
