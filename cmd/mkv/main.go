package main

import (
	"fmt"
	"os"

	_ "net/http/pprof" // registers /debug/pprof handlers on the default mux

	"github.com/spf13/cobra"

	"github.com/mkvstore/coordinator/pkg/config"
	"github.com/mkvstore/coordinator/pkg/log"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "mkv",
	Short:   "mkv is the coordinator for a rendezvous-hashed blob store",
	Long:    `mkv sits in front of a set of dumb HTTP volume servers, placing and replicating blobs across them by rendezvous hashing and tracking their location in an embedded index.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("mkv version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "output logs in JSON format")

	cobra.OnInitialize(initLogging)

	config.Bind(serveCmd)
	config.Bind(rebalanceCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(rebalanceCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}
