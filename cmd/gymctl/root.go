package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/guarzo/gymapi/config"
)

const envPrefix = "GYM"

type cli struct {
	v   *viper.Viper
	app *app
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}
	c.v.SetEnvPrefix(envPrefix)
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:           "gymctl",
		Short:         "Gym API client",
		Long:          "Command line client for the gym API. Expired access tokens are refreshed transparently.",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}

			logger, err := newLogger(c.v.GetBool("verbose"))
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}

			c.app, err = newApp(cmd.Context(), cfg, logger)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.app != nil {
				c.app.Close()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Configuration file path")
	flags.String("base-url", "", "API base URL")
	flags.String("store-dir", "", "Directory of the session files when no config file is given")
	flags.BoolP("verbose", "v", false, "Enable verbose logging")

	for _, name := range []string{"config", "base-url", "store-dir", "verbose"} {
		cobra.CheckErr(c.v.BindPFlag(name, flags.Lookup(name)))
	}

	rootCmd.AddCommand(
		c.signinCmd(),
		c.signoutCmd(),
		c.whoamiCmd(),
		c.groupsCmd(),
		c.exercisesCmd(),
		c.exerciseCmd(),
		c.doneCmd(),
		c.historyCmd(),
	)

	return rootCmd
}

// loadConfig reads the config file when one is given and layers flags and
// GYM_* variables over it. Without a file the session is kept on disk so it
// survives between invocations.
func (c *cli) loadConfig() (config.Config, error) {
	cfg := config.Default()

	if path := c.v.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	} else {
		dir := c.v.GetString("store-dir")
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return cfg, fmt.Errorf("failed to locate home directory: %w", err)
			}
			dir = filepath.Join(home, ".gymctl")
		}
		cfg.Store = config.Store{Type: "file", Config: config.NewFileStore(dir)}
	}

	if baseURL := c.v.GetString("base-url"); baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return cfg, cfg.Validate()
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
