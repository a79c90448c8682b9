package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// writeTimeout bounds each message write once the server-wide deadline has
// been lifted for the stream.
const writeTimeout = 30 * time.Second

// sseWriter frames messages onto one event stream. Every message carries a
// sequential id so clients can tell how far a broken stream got.
type sseWriter struct {
	w       io.Writer
	flusher http.Flusher
	rc      *http.ResponseController
	logger  *slog.Logger

	nextID int
	sent   int
	bytes  int64
}

func newSSEWriter(w http.ResponseWriter, flusher http.Flusher, logger *slog.Logger) *sseWriter {
	return &sseWriter{
		w:       w,
		flusher: flusher,
		rc:      http.NewResponseController(w),
		logger:  logger,
	}
}

// open lifts the server write timeout and sends the reconnect hint.
func (s *sseWriter) open(retry time.Duration) error {
	if err := s.rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("could not clear write deadline", "error", err)
	}
	return s.write(fmt.Sprintf("retry: %d\n\n", retry.Milliseconds()))
}

// send marshals v and writes it as the next data message.
func (s *sseWriter) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding stream message: %w", err)
	}
	if err := s.write(fmt.Sprintf("id: %d\ndata: %s\n\n", s.nextID, data)); err != nil {
		return err
	}
	s.nextID++
	s.sent++
	return nil
}

func (s *sseWriter) write(frame string) error {
	if err := s.rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		s.logger.Debug("could not set write deadline", "error", err)
	}
	n, err := io.WriteString(s.w, frame)
	s.bytes += int64(n)
	if err != nil {
		return fmt.Errorf("writing stream message: %w", err)
	}
	s.flusher.Flush()
	return nil
}
