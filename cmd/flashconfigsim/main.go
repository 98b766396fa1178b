// Command flashconfigsim drives a flashconfig.Engine against a
// simulated flash device from a YAML-described scenario, for manual
// exploration of the commit protocol without real hardware.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var logLevel string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "flashconfigsim",
		Short: "Run a flashconfig scenario against a simulated flash device",
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "one of debug, info, warn, error")
	root.AddCommand(newRunCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var scenarioPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a scenario file",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(logLevel)
			if err != nil {
				return err
			}
			s, err := loadScenario(scenarioPath)
			if err != nil {
				return err
			}
			return s.run(logger)
		},
	}
	cmd.Flags().StringVar(&scenarioPath, "scenario", "", "path to a scenario YAML file")
	cmd.MarkFlagRequired("scenario")
	return cmd
}

func newLogger(level string) (zerolog.Logger, error) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		Level(parsed).
		With().Timestamp().Logger(), nil
}
