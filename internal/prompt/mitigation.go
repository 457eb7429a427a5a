package prompt

// ladder holds increasingly generic rephrasing instructions appended to the
// prompt on successive retries of a refused generation. Index 0 is the
// no-mitigation variant used by the original attempt; the first retry starts
// at index 1 and the index saturates at the last entry.
var ladder = []string{
	"",
	"Render the people as faithful but clearly artistic interpretations of the reference images.",
	"Render the people as stylized illustrated characters inspired by the reference images.",
	"Render an artistic group scene loosely inspired by the reference images, without exact likenesses.",
	"Render a generic group of people in the described scene; use the reference images only for mood and palette.",
	"Render the described scene with generic, fictional people only.",
}

// LadderSize is the number of entries in the mitigation ladder, including the
// no-mitigation variant at index 0.
const LadderSize = 6

// Mitigation returns the mitigation text for a retry of an item that has
// already been attempted retryCount times. The first retry (retryCount 0)
// selects index 1; the index clamps at the most generic entry.
func Mitigation(retryCount int) string {
	idx := retryCount + 1
	if idx >= len(ladder) {
		idx = len(ladder) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return ladder[idx]
}
