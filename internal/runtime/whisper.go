//go:build whisper

package runtime

import (
	"io"

	"github.com/loqalabs/akira/internal/config"
	"github.com/loqalabs/akira/internal/stt"
	"github.com/loqalabs/akira/internal/stt/whisper"
)

func loadWhisper(cfg config.STTConfig) (stt.Engine, io.Closer, error) {
	engine, err := whisper.Load(cfg.ModelPath, cfg.Language)
	if err != nil {
		return nil, nil, err
	}
	return engine, engine, nil
}
