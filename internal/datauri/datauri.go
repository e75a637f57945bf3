package datauri

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const fallbackMime = "image/jpeg"

// Format builds a data URI from a MIME type and already-encoded base64 payload.
func Format(mimeType, base64Data string) string {
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		mimeType = fallbackMime
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64Data)
}

// Parse splits a data URI into its MIME type and decoded payload.
// A bare base64 string without the data: prefix is accepted and assumed JPEG.
func Parse(value string) (string, []byte, error) {
	mimeType, base64Data, err := Split(value)
	if err != nil {
		return "", nil, err
	}

	decoded, err := base64.StdEncoding.DecodeString(base64Data)
	if err != nil {
		return "", nil, fmt.Errorf("decode base64: %w", err)
	}
	return mimeType, decoded, nil
}

// Split is Parse without the base64 decode step.
func Split(value string) (mimeType string, base64Data string, err error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", "", errors.New("empty data url")
	}

	const prefix = "data:"
	if !strings.HasPrefix(value, prefix) {
		return fallbackMime, value, nil
	}

	parts := strings.SplitN(value, ",", 2)
	if len(parts) != 2 {
		return "", "", errors.New("invalid data url")
	}

	meta := strings.TrimPrefix(parts[0], prefix)
	metaParts := strings.Split(meta, ";")
	mimeType = strings.TrimSpace(metaParts[0])
	if mimeType == "" {
		mimeType = fallbackMime
	}
	return mimeType, parts[1], nil
}
