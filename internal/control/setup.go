package control

import (
	"fmt"
	"os"

	"lectern/internal/config"

	"github.com/spf13/cobra"
)

// NewSetupCmd writes the config template and downloads the configured model
// if missing.
func NewSetupCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Create config and download the whisper model if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if err := config.MustStatePaths(cfg); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "config:", cfg.Paths.ConfigPath)
			if err := cfg.RequireAPIKey(); err != nil {
				fmt.Fprintf(out, "note: %v (set it in %s or a .env beside it)\n", err, cfg.Paths.ConfigPath)
			}
			modelPath := os.ExpandEnv(cfg.ASR.ModelPath)
			if _, err := os.Stat(modelPath); err == nil {
				fmt.Fprintln(out, "model already present at", modelPath)
				return nil
			}
			file, ok := knownModelFile(cfg.ASR.ModelName)
			if !ok {
				return fmt.Errorf("model %s missing and asr.model_name %q is not a known model; run models list", modelPath, cfg.ASR.ModelName)
			}
			return downloadModel(out, modelBaseURL+file, modelPath)
		},
	}
}
