// Package prompt builds the final generation prompt and the retry mitigation
// ladder. Everything here is pure: no I/O, no mutable state, safe to re-run
// on every batch even when the optimized scene text is unchanged, because
// subject names and descriptions may have changed since.
package prompt

import (
	"fmt"
	"strings"

	"github.com/framefold/groupshot/internal/models"
)

// preamble pins the technical character of every portrait regardless of the
// scene the user asked for.
const preamble = `Professional group portrait photograph, 85mm lens, shallow depth of field, ` +
	`soft directional studio lighting, natural skin tones, sharp focus on every face, ` +
	`photorealistic, high detail.`

// Subject binds a person to one of the reference images by index.
type Subject struct {
	Name        string
	Description string
	PhotoIndex  int
}

// Assemble produces the ordered reference-image payload and the final prompt
// text: a fixed technical preamble, the optimized scene description, and one
// manifest line per subject binding it to its reference image.
func Assemble(refs []models.EncodedImage, subjects []Subject, scene string) ([]models.EncodedImage, string) {
	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("\n\nScene: ")
	b.WriteString(strings.TrimSpace(scene))
	b.WriteString("\n\nPeople to include, each matched to a reference image:\n")

	for _, s := range subjects {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			name = "Unnamed person"
		}
		fmt.Fprintf(&b, "- %s (reference image %d)", name, s.PhotoIndex+1)
		if desc := strings.TrimSpace(s.Description); desc != "" {
			b.WriteString(": ")
			b.WriteString(desc)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nEvery listed person must appear exactly once, with their face matching their reference image.")

	return refs, b.String()
}
