package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sprite-ai/guardrev/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented configuration file with the defaults",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

func init() {
	configCmd.AddCommand(configInitCmd, configShowCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		dir, err := configDir()
		if err != nil {
			return err
		}
		path = filepath.Join(dir, "config.toml")
	}
	if err := config.Init(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd, nil, false)
	if err != nil {
		return err
	}
	defer a.close()

	c := a.cfg
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "api_url        = %s\n", c.APIURL)
	fmt.Fprintf(out, "policies       = %s\n", strings.Join(c.Policies, ", "))
	fmt.Fprintf(out, "fallback_delay = %s\n", c.FallbackDelay)
	fmt.Fprintf(out, "timeout        = %s\n", c.Timeout)
	fmt.Fprintf(out, "log.file       = %s\n", c.Log.File)
	fmt.Fprintf(out, "log.level      = %s\n", c.Log.Level)
	fmt.Fprintf(out, "serve          = %s\n", c.Addr())
	fmt.Fprintf(out, "token          = %s\n", a.store.Path())
	return nil
}
