package tts

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"

	ytts "github.com/yandex-cloud/go-genproto/yandex/cloud/ai/tts/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"
)

// baseRate is the words-per-minute rate that maps to speed 1.0.
const baseRate = 150

type YandexConfig struct {
	Endpoint string
	APIKey   string
	FolderID string
	Voices   []string
}

type yandexSynth struct {
	client   ytts.SynthesizerClient
	conn     *grpc.ClientConn
	apiKey   string
	folderID string
	voices   []string
}

func NewYandexSynth(cfg YandexConfig) (Synthesizer, io.Closer, error) {
	if cfg.APIKey == "" || cfg.FolderID == "" {
		return nil, nil, errors.New("yandex tts requires api key and folder id")
	}
	conn, err := grpc.NewClient(cfg.Endpoint, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{})))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to TTS service: %w", err)
	}
	s := &yandexSynth{
		client:   ytts.NewSynthesizerClient(conn),
		conn:     conn,
		apiKey:   cfg.APIKey,
		folderID: cfg.FolderID,
		voices:   cfg.Voices,
	}
	return s, conn, nil
}

func (c *yandexSynth) Synthesize(ctx context.Context, req SynthRequest, out io.WriteSeeker) error {
	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Api-Key "+c.apiKey)
	ctx = metadata.AppendToOutgoingContext(ctx, "x-folder-id", c.folderID)

	stream, err := c.client.UtteranceSynthesis(ctx, c.buildRequest(req))
	if err != nil {
		return fmt.Errorf("failed to start synthesis: %w", err)
	}
	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to receive audio data: %w", err)
		}
		if chunk := resp.GetAudioChunk(); chunk != nil {
			if _, err := out.Write(chunk.GetData()); err != nil {
				return err
			}
		}
	}
}

func (c *yandexSynth) voice(index int) string {
	if index >= 0 && index < len(c.voices) {
		return c.voices[index]
	}
	if len(c.voices) > 0 {
		return c.voices[0]
	}
	return "marina"
}

func (c *yandexSynth) buildRequest(req SynthRequest) *ytts.UtteranceSynthesisRequest {
	r := &ytts.UtteranceSynthesisRequest{}
	r.SetModel("general")
	r.SetText(req.Text)

	voiceHint := &ytts.Hints{}
	voiceHint.SetVoice(c.voice(req.Voice))
	speedHint := &ytts.Hints{}
	rate := req.Rate
	if rate <= 0 {
		rate = baseRate
	}
	speedHint.SetSpeed(float64(rate) / baseRate)
	r.SetHints([]*ytts.Hints{voiceHint, speedHint})

	container := &ytts.ContainerAudio{}
	container.SetContainerAudioType(ytts.ContainerAudio_WAV)
	spec := &ytts.AudioFormatOptions{}
	spec.SetContainerAudio(container)
	r.SetOutputAudioSpec(spec)
	r.SetLoudnessNormalizationType(ytts.UtteranceSynthesisRequest_LUFS)
	return r
}
