// Command fw watches workspace roots and reports glob-scoped file events.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "0.3.0"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "fw",
	Short: "Glob-scoped file watching for editor tooling",
	Long: `fw turns raw filesystem change notifications into glob-scoped
create, change, delete, and rename events.

It watches one or more workspace roots, reconciles each change batch, and
infers renames from disappear/appear pairs sharing a size+mtime fingerprint.
Events can be printed, persisted to a journal, and streamed over WebSocket.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the fw version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fw %s\n", version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.fw.yaml)")
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads the config file and FW_* environment variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".fw")
	}

	viper.SetEnvPrefix("FW")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
