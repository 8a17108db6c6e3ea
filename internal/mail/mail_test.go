package mail

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestLogSender_TokenNeverAtInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	sender := NewLogSender(logger)

	if err := sender.SendVerification(context.Background(), "sam@example.com", "secret-verify-token"); err != nil {
		t.Fatalf("SendVerification() error = %v", err)
	}
	if err := sender.SendPasswordReset(context.Background(), "sam@example.com", "secret-reset-token"); err != nil {
		t.Fatalf("SendPasswordReset() error = %v", err)
	}

	logs := buf.String()
	if !strings.Contains(logs, "verification email queued") {
		t.Error("expected a verification delivery record at Info")
	}
	if !strings.Contains(logs, "password reset email queued") {
		t.Error("expected a reset delivery record at Info")
	}
	if strings.Contains(logs, "secret-verify-token") || strings.Contains(logs, "secret-reset-token") {
		t.Error("tokens must not appear in Info-level logs")
	}
}

func TestLogSender_TokenVisibleAtDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	sender := NewLogSender(logger)

	if err := sender.SendVerification(context.Background(), "sam@example.com", "secret-verify-token"); err != nil {
		t.Fatalf("SendVerification() error = %v", err)
	}
	if !strings.Contains(buf.String(), "secret-verify-token") {
		t.Error("expected the token in Debug-level logs for development use")
	}
}
