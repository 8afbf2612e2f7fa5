package cloudstt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/loqalabs/akira/internal/capture"
	speechkit "github.com/yandex-cloud/go-genproto/yandex/cloud/ai/stt/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"
)

// chunkBytes bounds each streamed audio message.
const chunkBytes = 32 * 1024

type YandexConfig struct {
	Endpoint string
	IAMToken string
	FolderID string
	Language string
}

type Yandex struct {
	client   speechkit.RecognizerClient
	conn     *grpc.ClientConn
	iamToken string
	folderID string
	language string
}

func NewYandex(cfg YandexConfig) (*Yandex, error) {
	if cfg.IAMToken == "" || cfg.FolderID == "" {
		return nil, errors.New("yandex stt requires iam token and folder id")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "stt.api.cloud.yandex.net:443"
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	conn, err := grpc.NewClient(cfg.Endpoint, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{})))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Yandex STT: %w", err)
	}
	return &Yandex{
		client:   speechkit.NewRecognizerClient(conn),
		conn:     conn,
		iamToken: cfg.IAMToken,
		folderID: cfg.FolderID,
		language: cfg.Language,
	}, nil
}

func (y *Yandex) Close() error {
	return y.conn.Close()
}

// Recognize streams one utterance and joins the final alternatives.
func (y *Yandex) Recognize(ctx context.Context, u capture.Utterance) (string, error) {
	md := metadata.Pairs(
		"authorization", "Bearer "+y.iamToken,
		"x-folder-id", y.folderID,
	)
	ctx, cancel := context.WithCancel(metadata.NewOutgoingContext(ctx, md))
	defer cancel()

	stream, err := y.client.RecognizeStreaming(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create streaming client: %w", err)
	}
	if err := stream.Send(y.sessionOptions(int64(u.SampleRate))); err != nil {
		return "", fmt.Errorf("failed to send session options: %w", err)
	}

	audio := u.Bytes()
	for len(audio) > 0 {
		n := min(chunkBytes, len(audio))
		req := &speechkit.StreamingRequest{
			Event: &speechkit.StreamingRequest_Chunk{
				Chunk: &speechkit.AudioChunk{Data: audio[:n]},
			},
		}
		if err := stream.Send(req); err != nil {
			return "", fmt.Errorf("failed to send audio chunk: %w", err)
		}
		audio = audio[n:]
	}
	if err := stream.CloseSend(); err != nil {
		return "", fmt.Errorf("failed to close stream: %w", err)
	}

	var parts []string
	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to receive response: %w", err)
		}
		if final := resp.GetFinal(); final != nil {
			alts := final.GetAlternatives()
			if len(alts) > 0 && alts[0].GetText() != "" {
				parts = append(parts, alts[0].GetText())
			}
		}
	}
	if len(parts) == 0 {
		return "", ErrNoSpeech
	}
	return strings.Join(parts, " "), nil
}

func (y *Yandex) sessionOptions(sampleRate int64) *speechkit.StreamingRequest {
	return &speechkit.StreamingRequest{
		Event: &speechkit.StreamingRequest_SessionOptions{
			SessionOptions: &speechkit.StreamingOptions{
				RecognitionModel: &speechkit.RecognitionModelOptions{
					AudioFormat: &speechkit.AudioFormatOptions{
						AudioFormat: &speechkit.AudioFormatOptions_RawAudio{
							RawAudio: &speechkit.RawAudio{
								AudioEncoding:     speechkit.RawAudio_LINEAR16_PCM,
								SampleRateHertz:   sampleRate,
								AudioChannelCount: 1,
							},
						},
					},
					TextNormalization: &speechkit.TextNormalizationOptions{
						TextNormalization: speechkit.TextNormalizationOptions_TEXT_NORMALIZATION_ENABLED,
					},
					LanguageRestriction: &speechkit.LanguageRestrictionOptions{
						RestrictionType: speechkit.LanguageRestrictionOptions_WHITELIST,
						LanguageCode:    []string{y.language},
					},
					AudioProcessingType: speechkit.RecognitionModelOptions_REAL_TIME,
				},
			},
		},
	}
}
