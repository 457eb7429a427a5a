// Package archive bundles a batch's successful results into a zip download.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/framefold/groupshot/internal/models"
)

// Filename returns a stable download name for a batch archive, built from a
// slug of the scene prompt and a short batch id.
func Filename(batch *models.Batch) string {
	s := slug(batch.ScenePrompt)
	if s == "" {
		s = "portraits"
	}
	id := batch.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s-%s.zip", s, id)
}

// WriteBatch writes a zip archive holding every successful item's image plus
// a metadata.txt describing the prompts that produced them. Batches without a
// single successful item are rejected.
func WriteBatch(w io.Writer, batch *models.Batch) error {
	var successes []*models.GenerationItem
	for _, item := range batch.Items {
		if item.Status == models.StatusSuccess && item.Result != nil {
			successes = append(successes, item)
		}
	}
	if len(successes) == 0 {
		return fmt.Errorf("batch %s has no successful results to export", batch.ID)
	}

	zw := zip.NewWriter(w)
	for i, item := range successes {
		name := fmt.Sprintf("portrait-%02d%s", i+1, extensionFor(item.Result.MIMEType))
		f, err := zw.Create(name)
		if err != nil {
			return fmt.Errorf("creating archive entry: %w", err)
		}
		if _, err := f.Write(item.Result.Data); err != nil {
			return fmt.Errorf("writing archive entry: %w", err)
		}
	}

	meta, err := zw.Create("metadata.txt")
	if err != nil {
		return fmt.Errorf("creating metadata entry: %w", err)
	}
	if _, err := io.WriteString(meta, metadata(batch, len(successes))); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}

	return zw.Close()
}

func metadata(batch *models.Batch, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generated: %s\n", batch.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "Images: %d\n\n", count)
	fmt.Fprintf(&b, "Scene prompt:\n%s\n", batch.ScenePrompt)
	if batch.OptimizedPrompt != "" {
		fmt.Fprintf(&b, "\nOptimized prompt:\n%s\n", batch.OptimizedPrompt)
	}
	return b.String()
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

// slug lowercases the prompt's first few words into a filename-safe token.
func slug(scene string) string {
	var b strings.Builder
	words := 0
	inWord := false
	for _, r := range strings.ToLower(scene) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			inWord = true
			continue
		}
		if inWord {
			words++
			if words == 4 {
				break
			}
			b.WriteByte('-')
			inWord = false
		}
	}
	return strings.Trim(b.String(), "-")
}
