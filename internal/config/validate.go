package config

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Validate checks value ranges. It does not check credentials; see
// RequireAPIKey, which only matters when the daemon is about to record.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.Audio,
		validation.Field(&c.Audio.SampleRate, validation.Required, validation.Min(8000), validation.Max(192000)),
		validation.Field(&c.Audio.Channels, validation.Required, validation.Min(1), validation.Max(2)),
		validation.Field(&c.Audio.Chunk, validation.Required, validation.Min(64)),
	); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	if err := validation.ValidateStruct(&c.Recording,
		validation.Field(&c.Recording.IntervalSec, validation.Required, validation.Min(1)),
		validation.Field(&c.Recording.Dir, validation.Required),
	); err != nil {
		return fmt.Errorf("recording: %w", err)
	}
	if err := validation.ValidateStruct(&c.VAD,
		validation.Field(&c.VAD.Aggressiveness, validation.Min(0), validation.Max(3)),
		validation.Field(&c.VAD.MinSpeechRatio, validation.Min(0.0), validation.Max(1.0)),
	); err != nil {
		return fmt.Errorf("vad: %w", err)
	}
	if err := validation.ValidateStruct(&c.SmartCut,
		validation.Field(&c.SmartCut.MaxSpanSec, validation.Required, validation.Min(0.0)),
		validation.Field(&c.SmartCut.MaxGapSec, validation.Min(0.0)),
	); err != nil {
		return fmt.Errorf("smartcut: %w", err)
	}
	c.LLM.APIType = strings.ToLower(strings.TrimSpace(c.LLM.APIType))
	if err := validation.ValidateStruct(&c.LLM,
		validation.Field(&c.LLM.APIType, validation.Required, validation.In(APITypeOpenAI, APITypeLocal)),
		validation.Field(&c.LLM.Model, validation.Required),
		validation.Field(&c.LLM.MaxTokens, validation.Required, validation.Min(1)),
		validation.Field(&c.LLM.SummaryMaxTokens, validation.Required, validation.Min(1)),
		validation.Field(&c.LLM.Temperature, validation.Min(0.0), validation.Max(2.0)),
		validation.Field(&c.LLM.MaxRetries, validation.Min(0), validation.Max(10)),
	); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := validation.ValidateStruct(&c.Output,
		validation.Field(&c.Output.SummaryDir, validation.Required),
	); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	return validation.ValidateStruct(&c.Logging,
		validation.Field(&c.Logging.Format, validation.In("text", "json")),
	)
}
