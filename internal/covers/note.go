package covers

import (
	"strings"

	"github.com/quartoworks/shelfmark/pkg/constants"
)

// NoteHTML wraps a cover data URI in the note markup. The heading doubles
// as the marker the child-note lookup searches for.
func NoteHTML(dataURI string) string {
	return `<div><h3>` + constants.CoverNoteTitle + `</h3><img src="` + dataURI +
		`" alt="Book Cover" style="max-width: 300px; height: auto;" /></div>`
}

// CorruptedNote reports whether a cover note lost its payload: Zotero 7
// rewrites data URIs it does not recognize, leaving the heading behind with
// no image under it.
func CorruptedNote(content string) bool {
	return !strings.Contains(content, "data:image") || !strings.Contains(content, "base64,")
}
