package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type promptStatusDTO struct {
	Waiting     int      `json:"waiting"`
	Processing  int      `json:"processing"`
	Finished    int      `json:"finished"`
	Done        bool     `json:"done"`
	Expired     bool     `json:"expired"`
	Generations []string `json:"generations"`
}

var statusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Poll the status of a submitted prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var status promptStatusDTO
		if err := fetchJSON("/generate/prompt/"+args[0], &status); err != nil {
			return err
		}
		fmt.Printf("waiting=%d processing=%d finished=%d done=%t expired=%t\n",
			status.Waiting, status.Processing, status.Finished, status.Done, status.Expired)
		for i, gen := range status.Generations {
			fmt.Printf("[%d] %s\n", i, gen)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
