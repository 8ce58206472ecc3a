package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type workerCardDTO struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Model            string  `json:"model"`
	MaxLength        int     `json:"max_length"`
	MaxContentLength int     `json:"max_content_length"`
	Performance      float64 `json:"performance"`
	Uptime           int64   `json:"uptime"`
	Contributions    int64   `json:"contributions"`
}

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "List non-stale workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		var cards []workerCardDTO
		if err := fetchJSON("/servers", &cards); err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cards)
	},
}

var serverCmd = &cobra.Command{
	Use:   "server <id>",
	Short: "Show a single worker card",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var card workerCardDTO
		if err := fetchJSON("/servers/"+args[0], &card); err != nil {
			return err
		}
		fmt.Printf("%s (%s) model=%s performance=%.2f tok/s uptime=%ds contributions=%d tokens\n",
			card.Name, card.ID, card.Model, card.Performance, card.Uptime, card.Contributions)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serversCmd)
	rootCmd.AddCommand(serverCmd)
}
