package tts

import (
	"fmt"
	"io"

	"github.com/loqalabs/akira/internal/config"
)

// NewEngine builds the synthesizer selected by cfg.Mode. The returned closer
// may be nil.
func NewEngine(cfg config.TTSConfig) (Synthesizer, io.Closer, error) {
	switch cfg.Mode {
	case "mock", "":
		return NewMockSynth(cfg.SampleRate, cfg.Channels), nil, nil
	case "exec":
		s, err := NewExecSynth(cfg.Command, cfg.SampleRate, cfg.Channels)
		return s, nil, err
	case "yandex":
		return NewYandexSynth(YandexConfig{
			Endpoint: cfg.YandexEndpoint,
			APIKey:   cfg.YandexAPIKey,
			FolderID: cfg.YandexFolderID,
			Voices:   cfg.YandexVoices,
		})
	default:
		return nil, nil, fmt.Errorf("unknown tts mode %q", cfg.Mode)
	}
}
