package editor

import (
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MaxImageBytes caps uploads so one picture cannot blow up the persisted record.
const MaxImageBytes = 5 << 20

// DataURL reads an image and encodes it as a data URL with its sniffed MIME type.
func DataURL(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImageBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}

	if len(data) > MaxImageBytes {
		return "", fmt.Errorf("image larger than %d bytes", MaxImageBytes)
	}

	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return "", fmt.Errorf("%w: detected %s", ErrNotImage, mime.String())
	}

	return "data:" + mime.String() + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
