package speech

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

var localeNames = map[string]string{
	"fr": "français",
	"en": "anglais",
}

// OpenAISynthesizer turns text into Opus voice notes with the OpenAI
// speech endpoint.
type OpenAISynthesizer struct {
	client openai.Client
	model  string
	voice  string
	dir    string
}

func NewOpenAISynthesizer(apiKey, model, voice, dir string, opts ...option.RequestOption) *OpenAISynthesizer {
	if apiKey != "" {
		opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	}
	if model == "" {
		model = openai.SpeechModelGPT4oMiniTTS
	}
	if voice == "" {
		voice = "nova"
	}
	if dir == "" {
		dir = os.TempDir()
	}
	return &OpenAISynthesizer{
		client: openai.NewClient(opts...),
		model:  model,
		voice:  voice,
		dir:    dir,
	}
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string, style Style) (*Artifact, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("synthesizing: empty text")
	}

	params := openai.AudioSpeechNewParams{
		Input:          text,
		Model:          s.model,
		Voice:          openai.AudioSpeechNewParamsVoice(s.voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatOpus,
		Instructions:   openai.String(instructions(style)),
	}
	if style.Slow {
		params.Speed = openai.Float(0.85)
	}

	resp, err := s.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai speech: %s", resp.Status)
	}

	path := filepath.Join(s.dir, "chloe-voice-"+uuid.NewString()+".ogg")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating voice file: %w", err)
	}
	art := &Artifact{Path: path, MimeType: "audio/ogg"}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		art.Cleanup()
		return nil, fmt.Errorf("writing voice file: %w", err)
	}
	if err := f.Close(); err != nil {
		art.Cleanup()
		return nil, fmt.Errorf("closing voice file: %w", err)
	}
	return art, nil
}

func instructions(style Style) string {
	locale := style.Locale
	if locale == "" {
		locale = "fr"
	}
	lang, ok := localeNames[locale]
	if !ok {
		lang = locale
	}
	b := "Parle en " + lang + ", d'une voix naturelle et chaleureuse de jeune femme."
	if style.Slow {
		b += " Parle lentement et doucement, sur un ton rassurant."
	}
	return b
}
