package selection

import (
	"errors"
	"io"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	// sniffLen is how many leading bytes are inspected to tell text from binary.
	sniffLen = 512
	// binaryThreshold is the share of non-printable bytes at which a sample is binary.
	binaryThreshold = 0.30
)

// textBytes marks the bytes counted as printable: common control characters
// (BEL, BS, TAB, LF, FF, CR, ESC) and everything from 0x20 up except DEL.
var textBytes = func() [256]bool {
	var t [256]bool
	for _, b := range []byte{7, 8, 9, 10, 12, 13, 27} {
		t[b] = true
	}
	for b := 0x20; b < 0x100; b++ {
		t[b] = b != 0x7f
	}
	return t
}()

// binaryMIMEPrefixes are sniffed types that are never scanned even when most
// of their first bytes happen to be printable.
var binaryMIMEPrefixes = []string{
	"image/", "audio/", "video/", "font/",
	"application/zip", "application/gzip", "application/x-gzip", "application/x-bzip2",
	"application/x-xz", "application/x-7z-compressed", "application/x-rar-compressed",
	"application/x-tar", "application/zstd", "application/pdf", "application/wasm",
	"application/x-executable", "application/x-elf", "application/x-mach-binary",
	"application/x-sharedlib", "application/x-object", "application/vnd.microsoft.portable-executable",
	"application/x-sqlite3", "application/java-archive", "application/x-java-applet",
}

// IsText reports whether the file at path looks like text. Empty or
// unreadable files are not text.
func IsText(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return false
	}
	return isTextSample(buf[:n])
}

func isTextSample(sample []byte) bool {
	if len(sample) == 0 {
		return false
	}
	if isBinaryMIME(mimetype.Detect(sample).String()) {
		return false
	}

	var nonPrintable int
	for _, b := range sample {
		if !textBytes[b] {
			nonPrintable++
		}
	}
	return float64(nonPrintable)/float64(len(sample)) < binaryThreshold
}

func isBinaryMIME(mimeType string) bool {
	if strings.Contains(mimeType, "+xml") {
		return false
	}
	for _, prefix := range binaryMIMEPrefixes {
		if strings.HasPrefix(mimeType, prefix) {
			return true
		}
	}
	return false
}
