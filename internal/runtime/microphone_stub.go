//go:build !portaudio

package runtime

import (
	"errors"
	"log/slog"

	"github.com/loqalabs/akira/internal/capture"
	"github.com/loqalabs/akira/internal/config"
)

var errNoPortaudio = errors.New("akirad was built without microphone support; rebuild with -tags portaudio")

func openMicrophone(config.ListenerConfig, *slog.Logger) (capture.Capturer, error) {
	return nil, errNoPortaudio
}
