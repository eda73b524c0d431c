package syncqueue

import (
	"errors"
	"io"
	"log/slog"
)

var errTestUnavailable = errors.New("connection refused")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
