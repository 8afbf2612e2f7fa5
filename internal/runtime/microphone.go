//go:build portaudio

package runtime

import (
	"log/slog"
	"time"

	"github.com/loqalabs/akira/internal/capture"
	"github.com/loqalabs/akira/internal/capture/portaudio"
	"github.com/loqalabs/akira/internal/config"
)

func openMicrophone(lc config.ListenerConfig, log *slog.Logger) (capture.Capturer, error) {
	return portaudio.New(portaudio.Config{
		SampleRate:      lc.SampleRate,
		FramesPerBuffer: lc.FramesPerBuffer,
		QuietPeriod:     time.Duration(lc.QuietPeriodMS) * time.Millisecond,
		MaxUtterance:    time.Duration(lc.MaxUtteranceMS) * time.Millisecond,
	}, log), nil
}
