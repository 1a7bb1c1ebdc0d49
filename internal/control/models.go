package control

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"lectern/internal/config"

	"github.com/spf13/cobra"
)

const modelBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"

// modelRegistry maps short names to ggml files.
var modelRegistry = map[string]string{
	"small":  "ggml-small-q5_1.bin",
	"medium": "ggml-medium-q5_1.bin",
	"large":  "ggml-large-v3-q5_0.bin",
	"turbo":  "ggml-large-v3-turbo-q8_0.bin",
}

func modelDir(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.StateDir, "models")
}

// resolveModelFile accepts a short name, a ggml file name, or a path.
func resolveModelFile(cfg *config.Config, name string) string {
	if file, ok := modelRegistry[name]; ok {
		name = file
	}
	if strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	return filepath.Join(modelDir(cfg), name)
}

func knownModelFile(name string) (string, bool) {
	if file, ok := modelRegistry[name]; ok {
		return file, true
	}
	for _, file := range modelRegistry {
		if file == name {
			return file, true
		}
	}
	return "", false
}

// NewModelsCmd wires up the models subcommands (list/download/set).
func NewModelsCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List/download/set whisper models",
	}
	cmd.AddCommand(newModelsListCmd(cfgPath))
	cmd.AddCommand(newModelsDownloadCmd(cfgPath))
	cmd.AddCommand(newModelsSetCmd(cfgPath))
	return cmd
}

func newModelsListCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known models and those present locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(modelRegistry))
			for n := range modelRegistry {
				names = append(names, n)
			}
			sort.Strings(names)
			out := cmd.OutOrStdout()
			for _, n := range names {
				file := modelRegistry[n]
				var marks []string
				if _, err := os.Stat(filepath.Join(modelDir(cfg), file)); err == nil {
					marks = append(marks, "downloaded")
				}
				if filepath.Base(cfg.ASR.ModelPath) == file {
					marks = append(marks, "active")
				}
				suffix := ""
				if len(marks) > 0 {
					suffix = " (" + strings.Join(marks, ", ") + ")"
				}
				fmt.Fprintf(out, "- %-7s %s%s\n", n, file, suffix)
			}
			return nil
		},
	}
}

func newModelsDownloadCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "download <model>",
		Short: "Download a model from the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			file, ok := knownModelFile(args[0])
			if !ok {
				return fmt.Errorf("unknown model %q; run models list", args[0])
			}
			return downloadModel(cmd.OutOrStdout(), modelBaseURL+file, filepath.Join(modelDir(cfg), file))
		},
	}
}

func newModelsSetCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "set <model-name-or-path>",
		Short: "Set asr.model_path in config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			cfg.ASR.ModelPath = resolveModelFile(cfg, args[0])
			if _, ok := modelRegistry[args[0]]; ok {
				cfg.ASR.ModelName = args[0]
			}
			if err := config.Save(cfg, cfg.Paths.ConfigPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "model set to %s\n", cfg.ASR.ModelPath)
			return nil
		},
	}
}

// downloadModel streams url into dest through a .part file.
func downloadModel(out io.Writer, url, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	fmt.Fprintf(out, "downloading %s -> %s\n", url, dest)
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: %s", resp.Status)
	}
	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		return err
	}
	fmt.Fprintln(out, "model download complete")
	return nil
}
