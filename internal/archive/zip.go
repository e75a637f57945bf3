// Package archive packages a finished run into a ZIP download: the
// original photo, the three generated views, and a prompts manifest.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"mime"
	"strings"
	"time"

	"turnaround-studio/internal/datauri"
)

// Item is one image to include, identified by a base name without
// extension; the extension is derived from the data URI's MIME type.
type Item struct {
	Name    string
	DataURI string
	Prompt  string // empty for the original photo
}

// BuildZIP writes all items plus a prompts.txt manifest into an in-memory
// ZIP archive.
func BuildZIP(items []Item) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	now := time.Now()

	var manifest strings.Builder

	for _, item := range items {
		mimeType, data, err := datauri.Parse(item.DataURI)
		if err != nil {
			return nil, fmt.Errorf("archive %s: %w", item.Name, err)
		}

		name := item.Name + extensionFor(mimeType)
		header := &zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: now,
		}
		f, err := w.CreateHeader(header)
		if err != nil {
			return nil, fmt.Errorf("archive %s: %w", name, err)
		}
		if _, err := f.Write(data); err != nil {
			return nil, fmt.Errorf("archive %s: %w", name, err)
		}

		if item.Prompt != "" {
			manifest.WriteString(name + "\n")
			manifest.WriteString(item.Prompt + "\n\n")
		}
	}

	if manifest.Len() > 0 {
		f, err := w.CreateHeader(&zip.FileHeader{
			Name:     "prompts.txt",
			Method:   zip.Deflate,
			Modified: now,
		})
		if err != nil {
			return nil, fmt.Errorf("archive prompts.txt: %w", err)
		}
		if _, err := f.Write([]byte(manifest.String())); err != nil {
			return nil, fmt.Errorf("archive prompts.txt: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

func extensionFor(mimeType string) string {
	// Prefer the conventional extensions; mime.ExtensionsByType orders
	// alternatives like .jpe before .jpg.
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	}
	if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
