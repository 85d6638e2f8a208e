package main

import (
	"github.com/spf13/cobra"

	"github.com/drivepi/drivepi-go/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())
			_, err := cc.Out.Write([]byte(cc.Cfg.ConfigPath + "\n"))

			return err
		},
	}
}

// configJSON is the JSON schema for `config show --json`.
type configJSON struct {
	ConfigPath     string `json:"config_path"`
	ServerURL      string `json:"server_url"`
	RequestTimeout string `json:"request_timeout"`
	UserAgent      string `json:"user_agent"`
	TokenFile      string `json:"token_file"`
	HistoryFile    string `json:"history_file"`
	LogLevel       string `json:"log_level"`
	Theme          string `json:"theme"`
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	r := cc.Cfg

	if cc.Flags.JSON {
		return printJSON(cc.Out, configJSON{
			ConfigPath:     r.ConfigPath,
			ServerURL:      r.ServerURL,
			RequestTimeout: r.Timeout.String(),
			UserAgent:      r.UserAgent,
			TokenFile:      r.TokenFile,
			HistoryFile:    r.HistoryFile,
			LogLevel:       r.LogLevel,
			Theme:          r.Theme,
		})
	}

	return config.RenderEffective(r, cc.Out)
}
