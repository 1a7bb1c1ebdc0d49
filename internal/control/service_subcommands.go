package control

import (
	"fmt"
	"os"
	"strings"

	"lectern/internal/config"
	"lectern/internal/service"

	"github.com/spf13/cobra"
)

// NewServiceRootCmd manages the launchd agent (macOS).
func NewServiceRootCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage launchd service (macOS)",
	}
	cmd.AddCommand(newServiceInstallCmd(cfgPath))
	cmd.AddCommand(newServiceUninstallCmd())
	cmd.AddCommand(newServiceStatusCmd())
	return cmd
}

func newServiceInstallCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install user launchd service (macOS)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			exe, err := os.Executable()
			if err != nil {
				return err
			}
			envPairs, _ := cmd.Flags().GetStringArray("env")
			env, err := parseEnvPairs(envPairs)
			if err != nil {
				return err
			}
			params := service.LaunchdParams{
				Label:  service.DefaultLabel,
				Binary: exe,
				Config: cfg.Paths.ConfigPath,
				Log:    cfg.Paths.LogPath,
				Env:    env,
			}
			path, err := service.WritePlist(params)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "launchd plist written: %s\n", path)
			fmt.Fprintln(out, "Load:   launchctl load -w", path)
			fmt.Fprintf(out, "Start:  launchctl kickstart gui/$(id -u)/%s\n", params.Label)
			fmt.Fprintf(out, "Stop:   launchctl bootout gui/$(id -u)/%s\n", params.Label)
			return nil
		},
	}
	cmd.Flags().StringArray("env", nil, "Env to set in launchd plist (KEY=VAL)")
	return cmd
}

func newServiceUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove user launchd plist (macOS)",
		RunE: func(cmd *cobra.Command, args []string) error {
			plist := service.LaunchdPath(service.DefaultLabel)
			if err := os.Remove(plist); err != nil && !os.IsNotExist(err) {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s (if present); unload manually with: launchctl bootout gui/$(id -u) %s\n", plist, plist)
			return nil
		},
	}
}

func newServiceStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show launchd plist path and whether it exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, ok := service.Status(service.DefaultLabel)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "plist: %s\n", path)
			if ok {
				fmt.Fprintln(out, "status: present (load with: launchctl load -w", path, ")")
			} else {
				fmt.Fprintln(out, "status: missing (install via: lectern service install)")
			}
			return nil
		},
	}
}

func parseEnvPairs(pairs []string) (map[string]string, error) {
	env := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("bad env %q, want KEY=VAL", p)
		}
		env[k] = v
	}
	return env, nil
}
