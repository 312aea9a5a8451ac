package db

import (
	"context"
	"testing"
	"time"
)

func TestFormatMillis(t *testing.T) {
	if got := formatMillis(1500 * time.Millisecond); got != "1500" {
		t.Fatalf("expected 1500, got %q", got)
	}
}

func TestOpen_RejectsBadURL(t *testing.T) {
	if _, err := Open(context.Background(), "postgres://%zz", Options{}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestReadyCheck_Unconfigured(t *testing.T) {
	if err := ReadyCheck(nil)(context.Background()); err == nil {
		t.Fatal("expected error for nil pool")
	}
}
