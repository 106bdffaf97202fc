/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetupLevelByEnvironment(t *testing.T) {
	tests := []struct {
		env  string
		want zerolog.Level
	}{
		{"development", zerolog.DebugLevel},
		{"production", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		if got := SetupWithWriter(tt.env, &buf).GetLevel(); got != tt.want {
			t.Errorf("SetupWithWriter(%q) level = %v, want %v", tt.env, got, tt.want)
		}
	}
}

func TestQuietDropsInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := Quiet(SetupWithWriter("development", &buf))

	logger.Info().Msg("countdown tick")
	logger.Warn().Msg("shutdown imminent")

	out := buf.String()
	if strings.Contains(out, "countdown tick") {
		t.Fatalf("info line leaked through quiet logger: %q", out)
	}
	if !strings.Contains(out, "shutdown imminent") {
		t.Fatalf("warn line missing: %q", out)
	}
}
