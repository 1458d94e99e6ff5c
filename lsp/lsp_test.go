package lsp

import (
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestDidOpenReportsUndefinedRefDiagnostic(t *testing.T) {
	s := New()
	diags := s.DidOpen("models/sessions.sql", "SELECT * FROM smelt.ref('missing')")
	assert.Equal(t, 1, len(diags))
	assert.Equal(t, "error", diags[0].Severity)
}

func TestDefinitionResolvesRefToUpstreamFile(t *testing.T) {
	s := New()
	s.DidOpen("models/raw_events.sql", "SELECT 1 AS id")
	content := "SELECT * FROM smelt.ref('raw_events')"
	s.DidOpen("models/sessions.sql", content)

	offset := indexOf(content, "'raw_events'") + 2
	loc, ok := s.Definition("models/sessions.sql", offset)
	assert.True(t, ok)
	assert.Equal(t, "models/raw_events.sql", loc.Path)
}

func TestDefinitionOutsideRefReturnsFalse(t *testing.T) {
	s := New()
	s.DidOpen("models/a.sql", "SELECT 1")
	_, ok := s.Definition("models/a.sql", 0)
	assert.False(t, ok)
}

func TestHoverListsUpstreamColumns(t *testing.T) {
	s := New()
	s.DidOpen("models/raw_events.sql", "SELECT 1 AS id, 2 AS amount")
	content := "SELECT * FROM smelt.ref('raw_events')"
	s.DidOpen("models/sessions.sql", content)

	offset := indexOf(content, "'raw_events'") + 2
	text, ok := s.Hover("models/sessions.sql", offset)
	assert.True(t, ok)
	assert.True(t, strings.Contains(text, "id"))
	assert.True(t, strings.Contains(text, "amount"))
}

func TestCompletionInsideRefCallListsModelNames(t *testing.T) {
	s := New()
	s.DidOpen("models/raw_events.sql", "SELECT 1 AS id")
	content := "SELECT * FROM smelt.ref('"
	s.DidOpen("models/sessions.sql", content)

	items := s.Completion("models/sessions.sql", len(content))
	assert.True(t, len(items) >= 1)
	var found bool
	for _, it := range items {
		if it.Label == "raw_events" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCompletionAfterSelectListsAvailableColumns(t *testing.T) {
	s := New()
	s.DidOpen("models/raw_events.sql", "SELECT 1 AS id")
	content := "SELECT * FROM smelt.ref('raw_events') "
	s.DidOpen("models/sessions.sql", content+"\nSELECT ")
	offset := len(content + "\nSELECT ")

	items := s.Completion("models/sessions.sql", offset)
	assert.True(t, len(items) >= 1)
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
