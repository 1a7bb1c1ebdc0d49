package control

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"lectern/internal/asr"
	"lectern/internal/config"
	"lectern/internal/logging"
	"lectern/internal/segments"
	"lectern/internal/smartcut"

	"github.com/spf13/cobra"
)

// NewTranscribeCmd transcribes one WAV file, shows its topic blocks and
// optionally turns them into notes.
func NewTranscribeCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcribe <wavfile>",
		Short: "Transcribe a WAV file into topic blocks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			logger := logging.Console(cfg.Logging.Level)
			tr, err := asr.New(cfg, logger)
			if err != nil {
				return err
			}
			spans, err := asr.WithTimeout(tr, cfg.ASRTimeout()).Transcribe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			det := smartcut.Detector{MaxSpan: cfg.SmartCut.MaxSpanSec, MaxGap: cfg.SmartCut.MaxGapSec, Markers: cfg.SmartCut.Markers}
			blocks, reasons := det.CutWithReasons(spans)

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(blocks)
			}
			writeBlocks(cmd.OutOrStdout(), blocks, reasons)

			if wantNotes, _ := cmd.Flags().GetBool("notes"); !wantNotes || len(blocks) == 0 {
				return nil
			}
			orch, err := newOrchestrator(cfg, logger, false)
			if err != nil {
				return err
			}
			segID, _ := segments.ParseID(filepath.Base(args[0]))
			for _, b := range blocks {
				rec, saved, err := orch.SummarizeBlock(cmd.Context(), b, segID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "\nnote: %s\n%s\n", saved.NotePath, rec.Summary)
			}
			return nil
		},
	}
	cmd.Flags().Bool("notes", false, "summarize each block and save notes")
	cmd.Flags().Bool("json", false, "output blocks as JSON")
	return cmd
}

func writeBlocks(w io.Writer, blocks []smartcut.Block, reasons []smartcut.Reason) {
	if len(blocks) == 0 {
		fmt.Fprintln(w, "(no speech recognized)")
		return
	}
	for i, b := range blocks {
		fmt.Fprintf(w, "## block %d [%s - %s] (%s)\n", i+1, clock(b[0].Start), clock(b[len(b)-1].End), reasons[i])
		fmt.Fprintln(w, b.Text())
	}
}

func clock(sec float64) string {
	total := int(sec)
	return fmt.Sprintf("%02d:%02d.%d", total/60, total%60, int((sec-float64(total))*10))
}
