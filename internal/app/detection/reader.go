package detection

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrFileTooLarge is returned by ReadText when a file exceeds the size limit.
var ErrFileTooLarge = errors.New("file too large")

// ReadText reads a file as text. Invalid UTF-8 sequences are replaced with
// U+FFFD, a UTF-8 byte order mark is stripped, and UTF-16 files carrying a
// byte order mark are transcoded to UTF-8.
func ReadText(path string, maxBytes int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat file: %w", err)
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds the %d byte limit", ErrFileTooLarge, info.Size(), maxBytes)
	}

	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	data, err := io.ReadAll(transform.NewReader(f, decoder))
	if err != nil {
		return "", fmt.Errorf("failed to decode file: %w", err)
	}
	return string(data), nil
}
