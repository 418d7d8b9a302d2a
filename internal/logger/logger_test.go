package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLevel(t *testing.T) {
	l := New(Config{Level: "debug", Encoding: "console"})
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	l = New(Config{Level: "nonsense"})
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
}

func TestFromContext(t *testing.T) {
	base := zap.NewNop()
	reqLogger := zap.NewExample()

	assert.Same(t, base, FromContext(context.Background(), base))
	assert.Same(t, reqLogger, FromContext(WithContext(context.Background(), reqLogger), base))
	assert.NotNil(t, FromContext(context.Background(), nil))
}
