package main

import (
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	baseURL string

	httpClient = &http.Client{Timeout: 10 * time.Second}
)

var rootCmd = &cobra.Command{
	Use:   "hordectl",
	Short: "Operator CLI for the horde broker",
	Long:  "hordectl queries a running broker's HTTP surface: workers, models, usage, contributions, and prompt status.",
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.hordectl.yaml)")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "http://localhost:7001", "broker base URL")
	_ = viper.BindPFlag("base_url", rootCmd.PersistentFlags().Lookup("base-url"))
}

func initConfig() {
	viper.SetDefault("base_url", "http://localhost:7001")
	viper.SetEnvPrefix("HORDECTL")
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, _ := os.UserHomeDir()
		viper.AddConfigPath(home)
		viper.SetConfigName(".hordectl")
		viper.SetConfigType("yaml")
	}
	_ = viper.ReadInConfig()

	if u := viper.GetString("base_url"); u != "" {
		baseURL = u
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
