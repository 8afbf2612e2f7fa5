package stt

import "context"

// Decoder consumes PCM incrementally. AcceptWaveform reports true when the
// samples fed so far closed an utterance whose text is available from Result.
// FinalResult flushes the decoder and returns the authoritative transcript.
type Decoder interface {
	AcceptWaveform(samples []int) (bool, error)
	Result() string
	FinalResult(ctx context.Context) (string, error)
}

// Engine creates decoders for a given sample rate.
type Engine interface {
	NewDecoder(sampleRate int) (Decoder, error)
}
