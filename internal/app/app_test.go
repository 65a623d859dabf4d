package app_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MrJamesThe3rd/debtsync/internal/app"
)

func TestNewLogger(t *testing.T) {
	type testCase struct {
		name      string
		format    string
		level     string
		wantJSON  bool
		wantDebug bool
	}

	tests := []testCase{
		{name: "TextInfo", format: "text", level: "info"},
		{name: "JSON", format: "JSON", level: "info", wantJSON: true},
		{name: "Debug", format: "text", level: "debug", wantDebug: true},
		{name: "UnknownLevelFallsBackToInfo", format: "text", level: "chatty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			logger := app.NewLogger(&buf, tt.format, tt.level)
			logger.Info("ready", "port", 8080)

			assert.Equal(t, tt.wantJSON, bytes.HasPrefix(buf.Bytes(), []byte("{")), buf.String())
			assert.Equal(t, tt.wantDebug, logger.Enabled(context.Background(), slog.LevelDebug))
		})
	}
}
