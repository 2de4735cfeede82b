package email

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileEmailSender keeps a rotating on-disk log of every notification, for
// staging environments where nobody should receive real mail.
type FileEmailSender struct {
	mu  sync.Mutex
	out *lumberjack.Logger
}

func NewFileEmailSender(filePath string) (*FileEmailSender, error) {
	if strings.TrimSpace(filePath) == "" {
		return nil, fmt.Errorf("email log file path cannot be empty")
	}
	return &FileEmailSender{out: &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    20, // MB
		MaxBackups: 5,
		MaxAge:     14, // days
	}}, nil
}

func (s *FileEmailSender) Send(_ context.Context, to []string, subject string, rawMessage []byte) error {
	var entry strings.Builder
	fmt.Fprintf(&entry, "=== %s\nTo: %s\nSubject: %s\n\n", time.Now().UTC().Format(time.RFC3339), strings.Join(to, ", "), subject)
	entry.Write(rawMessage)
	entry.WriteString("\n\n")

	s.mu.Lock()
	_, err := s.out.Write([]byte(entry.String()))
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to append to email log %s: %w", s.out.Filename, err)
	}

	zap.L().Debug("notification written to email log", zap.Strings("to", to), zap.String("subject", subject))
	return nil
}

// Close releases the underlying file.
func (s *FileEmailSender) Close() error {
	return s.out.Close()
}
