package deepresearch

import (
	"bytes"
	"html"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/quartoworks/shelfmark/pkg/constants"
	"github.com/quartoworks/shelfmark/pkg/errors"
	"github.com/quartoworks/shelfmark/pkg/zotero"
)

// ResearchTag marks report notes so reruns can find them without scraping
// content.
const ResearchTag = "deep-research"

// reportMarkers identify an existing report note by content, covering
// notes written by the retired Python scripts (Spanish header, with and
// without the accent) as well as the current format.
var reportMarkers = []string{
	strings.ToLower(constants.ResearchNoteTitle),
	"reporte de investigación profunda",
	"reporte de investigacion profunda",
}

// NoteHTML renders a research report as a note body: a fixed heading
// (which doubles as the rerun marker) followed by the report markdown
// converted to HTML.
func NoteHTML(report string) (string, error) {
	var buf bytes.Buffer
	buf.WriteString("<h1>" + constants.ResearchNoteTitle + "</h1>\n")
	if err := goldmark.Convert([]byte(report), &buf); err != nil {
		return "", errors.NewParseError("markdown", "", "render report", err)
	}
	return buf.String(), nil
}

// AppendFollowUp extends a report note with a question and its answer. The
// question is plain text; the answer is markdown from the model.
func AppendFollowUp(noteHTML, question, answer string) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(noteHTML)
	buf.WriteString("\n<h2>Follow-up</h2>\n")
	buf.WriteString("<p><strong>" + html.EscapeString(question) + "</strong></p>\n")
	if err := goldmark.Convert([]byte(answer), &buf); err != nil {
		return "", errors.NewParseError("markdown", "", "render follow-up answer", err)
	}
	return buf.String(), nil
}

// IsReportNote reports whether a child note already carries a research
// report: by tag first, then by content markers.
func IsReportNote(note *zotero.Item) bool {
	for _, tag := range note.Data.Tags {
		if strings.EqualFold(tag.Tag, ResearchTag) {
			return true
		}
	}
	content := strings.ToLower(note.Data.Note)
	for _, marker := range reportMarkers {
		if strings.Contains(content, marker) {
			return true
		}
	}
	return false
}
