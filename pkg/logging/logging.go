// Package logging builds the structured logger every component in this
// module accepts as a narrow interface rather than a concrete type.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lokutor-ai/lokutor-client/pkg/dialogue"
)

// New builds a zap-backed sugared logger. debug widens the level to
// Debug; otherwise Info and above.
func New(debug bool) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		cfg.Encoding = "console"
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// DialogueAdapter bridges a *zap.SugaredLogger to pkg/dialogue.Logger.
// Conversation calls Debug/Info/Warn/Error with a constant message plus
// alternating key/value pairs (the same convention zap's own *w methods
// use), so the adapter forwards to those rather than to Debugf/Infof,
// which would treat the message as a printf format string.
type DialogueAdapter struct {
	s *zap.SugaredLogger
}

// NewDialogueAdapter wraps sugared for use as a dialogue.Logger.
func NewDialogueAdapter(s *zap.SugaredLogger) *DialogueAdapter {
	return &DialogueAdapter{s: s}
}

func (a *DialogueAdapter) Debug(msg string, args ...interface{}) { a.s.Debugw(msg, args...) }
func (a *DialogueAdapter) Info(msg string, args ...interface{})  { a.s.Infow(msg, args...) }
func (a *DialogueAdapter) Warn(msg string, args ...interface{})  { a.s.Warnw(msg, args...) }
func (a *DialogueAdapter) Error(msg string, args ...interface{}) { a.s.Errorw(msg, args...) }

var _ dialogue.Logger = (*DialogueAdapter)(nil)
