package slogadapter_test

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/antonzymin-eng/simcore/slogadapter"
)

func TestAdapterForwardsToSlog(t *testing.T) {
	var buf bytes.Buffer
	logger := slogadapter.New(slog.New(slog.NewTextHandler(&buf, nil)))

	logger.Info("frame complete", "frame", 12)
	logger.Error("system failed", "system", "physics")

	out := buf.String()
	if !strings.Contains(out, "frame complete") || !strings.Contains(out, "frame=12") {
		t.Fatalf("info entry missing: %s", out)
	}
	if !strings.Contains(out, "system failed") || !strings.Contains(out, "level=ERROR") {
		t.Fatalf("error entry missing: %s", out)
	}
}

func TestWithAttachesField(t *testing.T) {
	var buf bytes.Buffer
	logger := slogadapter.New(slog.New(slog.NewTextHandler(&buf, nil)))

	logger.With("component", "scheduler").Info("started")
	if !strings.Contains(buf.String(), "component=scheduler") {
		t.Fatalf("With field missing: %s", buf.String())
	}
}

func TestNilLoggerFallsBackToDefault(t *testing.T) {
	logger := slogadapter.New(nil)
	if logger == nil {
		t.Fatal("adapter should never be nil")
	}
}
