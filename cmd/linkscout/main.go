// Command linkscout discovers public contact channels for a list of sites.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/FranksOps/linkscout/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// version is set at build time with -ldflags "-X main.version=...".
	version = "dev"

	v   *viper.Viper = config.New()
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "linkscout",
	Short:         "Find emails, social profiles and contact forms for websites",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := config.BindFlags(v, cmd.Flags()); err != nil {
			return err
		}
		path, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(v, path)
		if err != nil {
			return err
		}
		cfg = loaded
		logger, err := newLogger(cmd.ErrOrStderr(), cfg)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	config.AddFlags(rootCmd.PersistentFlags())
}

func newLogger(w io.Writer, c *config.Config) (*slog.Logger, error) {
	level, err := c.Level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
