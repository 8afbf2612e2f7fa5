//go:build !whisper

package runtime

import (
	"errors"
	"io"

	"github.com/loqalabs/akira/internal/config"
	"github.com/loqalabs/akira/internal/stt"
)

var errNoWhisper = errors.New("akirad was built without whisper support; rebuild with -tags whisper")

func loadWhisper(config.STTConfig) (stt.Engine, io.Closer, error) {
	return nil, nil, errNoWhisper
}
