package speech

import (
	"context"
	"errors"
	"fmt"
	"os"
)

var ErrDisabled = errors.New("speech synthesis disabled")

// Style shapes how a reply is spoken.
type Style struct {
	Locale string // BCP 47 language, "fr" by default
	Slow   bool   // softer, slower delivery for comforting replies
}

// Artifact is a synthesized audio file on local disk. The caller owns it
// and must call Cleanup once it has been sent.
type Artifact struct {
	Path     string
	MimeType string
}

// Cleanup removes the audio file. It is safe to call more than once.
func (a *Artifact) Cleanup() error {
	if a == nil || a.Path == "" {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing voice artifact: %w", err)
	}
	return nil
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string, style Style) (*Artifact, error)
}

// Disabled is the Synthesizer for deployments without voice.
type Disabled struct{}

func (Disabled) Synthesize(context.Context, string, Style) (*Artifact, error) {
	return nil, ErrDisabled
}
