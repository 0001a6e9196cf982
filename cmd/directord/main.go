package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/directord/pkg/config"
	"github.com/cuemby/directord/pkg/log"

	// Blank-imported for their init() registration side effects: each
	// one registers itself into pkg/driver's or pkg/datastore's
	// registry so config.Driver/config.Datastore can name it by
	// scheme. Nothing in this package calls them directly.
	_ "github.com/cuemby/directord/pkg/datastore/file"
	_ "github.com/cuemby/directord/pkg/datastore/memory"
	_ "github.com/cuemby/directord/pkg/datastore/redis"
	_ "github.com/cuemby/directord/pkg/driver/amqpdriver"
	_ "github.com/cuemby/directord/pkg/driver/grpcdriver"
)

// Version information (set via ldflags during build).
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCodeFor(err))
	}
}

var rootCmd = &cobra.Command{
	Use:     "directord",
	Short:   "Directord - asynchronous, targeted job orchestration",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"directord version %s\ncommit: %s\nbuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("config", "", "Path to a YAML configuration file")
	config.RegisterFlags(rootCmd)

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(clientCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(orchestrateCmd)
	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(manageCmd)
}

func initLogging() {
	debug, _ := rootCmd.PersistentFlags().GetBool("debug")
	level := log.InfoLevel
	if debug {
		level = log.DebugLevel
	}
	log.Init(log.Config{Level: level, JSONOutput: true, Output: os.Stdout})
}

// loadConfig resolves this invocation's Config: the --config file (if
// any) overlaid by whatever flags cmd's own flag set carries.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path, cmd)
}

// exitCodeFor maps an error to spec.md §6's documented exit codes: 0
// success (never reaches here), 1 user-facing error by default, 2 for
// errors a subcommand tags as invalid input, 99 for an unsupported
// platform.
func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, errUnsupportedPlatform):
		return 99
	case errors.Is(err, errInvalidInput):
		return 2
	default:
		return 1
	}
}
