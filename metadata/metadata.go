// Package metadata implements C5: extraction of optional YAML frontmatter
// from model source files, in both the single-model and multi-model section
// shapes described in spec.md §4.5 and §6.1.
package metadata

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-yaml"
)

// Materialization is the recognized value of the `materialization` key.
type Materialization string

const (
	MaterializationUnset Materialization = ""
	MaterializationTable Materialization = "table"
	MaterializationView  Materialization = "view"
)

// Incremental is the `incremental:` sub-object.
type Incremental struct {
	Enabled         bool
	EventTimeColumn string
	PartitionColumn string
}

// Metadata is one section's extracted header fields.
type Metadata struct {
	Name            string
	Materialization Materialization
	Incremental     Incremental
	Tags            []string
	Owner           string
	Description     string
	BackendHints    map[string]any
}

// Section is one (metadata, SQL) pair. For a single-model file there is
// exactly one Section; a multi-model file yields one per `--- name:` block.
type Section struct {
	Metadata Metadata
	// SQLStart/SQLEnd are the byte offsets of this section's SQL body within
	// the original file content.
	SQLStart int
	SQLEnd   int
	// SQL is the exact substring content[SQLStart:SQLEnd].
	SQL string
}

var (
	// ErrUnclosedHeader means an opening `---` delimiter was never closed.
	ErrUnclosedHeader = errors.New("metadata: unclosed header")
	// ErrMalformedDelimiter means a `--- name:` line did not match the
	// required `--- name: <identifier> ---` shape.
	ErrMalformedDelimiter = errors.New("metadata: malformed section delimiter")
	// ErrMissingName means a multi-model section delimiter had no name.
	ErrMissingName = errors.New("metadata: missing name in section delimiter")
	// ErrInvalidYAML wraps a YAML unmarshal failure.
	ErrInvalidYAML = errors.New("metadata: invalid YAML header")
)

// Error is a metadata extraction failure with a reported source line.
type Error struct {
	Line int // 1-based
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Extract inspects content and returns the sections it contains. A file with
// neither recognized header shape yields a single Section with zero-value
// Metadata and the entire content as SQL — this is not an error (spec.md
// §4.5: "If neither header shape applies, the file has no metadata").
func Extract(content string) ([]Section, error) {
	trimmed := strings.TrimLeft(content, " \t\r\n")
	leadingWS := len(content) - len(trimmed)

	if hasMultiModelMarker(content) {
		return extractMultiModel(content)
	}
	if strings.HasPrefix(trimmed, "---\n") || trimmed == "---" {
		sec, err := extractSingleModel(content, leadingWS)
		if err != nil {
			return nil, err
		}
		return []Section{sec}, nil
	}
	return []Section{{SQLStart: 0, SQLEnd: len(content), SQL: content}}, nil
}

// hasMultiModelMarker reports whether any line begins with "--- name:".
func hasMultiModelMarker(content string) bool {
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimLeft(line, " \t"), "--- name:") {
			return true
		}
	}
	return false
}

func extractSingleModel(content string, headerStart int) (Section, error) {
	rest := content[headerStart+4:] // past "---\n"
	closeIdx := strings.Index(rest, "\n---")
	if closeIdx == -1 {
		return Section{}, &Error{Line: lineOf(content, headerStart), Err: ErrUnclosedHeader}
	}

	yamlBody := rest[:closeIdx]
	afterClose := headerStart + 4 + closeIdx + len("\n---")
	// Skip the rest of the closing delimiter's line.
	sqlStart := afterClose
	if nl := strings.IndexByte(content[afterClose:], '\n'); nl != -1 {
		sqlStart = afterClose + nl + 1
	} else {
		sqlStart = len(content)
	}

	md, err := parseYAML(yamlBody)
	if err != nil {
		return Section{}, &Error{Line: lineOf(content, headerStart), Err: fmt.Errorf("%w: %w", ErrInvalidYAML, err)}
	}

	return Section{
		Metadata: md,
		SQLStart: sqlStart,
		SQLEnd:   len(content),
		SQL:      content[sqlStart:],
	}, nil
}

// extractMultiModel splits content on "--- name: <id> ---" delimiter lines.
func extractMultiModel(content string) ([]Section, error) {
	lines := splitLinesKeepOffsets(content)

	type block struct {
		name      string
		lineIdx   int
		headerEnd int // byte offset just past the delimiter line's newline
	}
	var blocks []block
	for i, ln := range lines {
		trimmedLine := strings.TrimSpace(content[ln.start:ln.end])
		if !strings.HasPrefix(trimmedLine, "--- name:") {
			continue
		}
		name, ok := parseDelimiterLine(trimmedLine)
		if !ok {
			return nil, &Error{Line: i + 1, Err: ErrMalformedDelimiter}
		}
		if name == "" {
			return nil, &Error{Line: i + 1, Err: ErrMissingName}
		}
		headerEnd := ln.end
		if headerEnd < len(content) && content[headerEnd] == '\n' {
			headerEnd++
		}
		blocks = append(blocks, block{name: name, lineIdx: i, headerEnd: headerEnd})
	}

	var sections []Section
	for bi, b := range blocks {
		// Find the closing "---" line following this section's header.
		closeOffset := -1
		searchFrom := b.headerEnd
		for j := b.lineIdx + 1; j < len(lines); j++ {
			if lines[j].start < searchFrom {
				continue
			}
			trimmedLine := strings.TrimSpace(content[lines[j].start:lines[j].end])
			if trimmedLine == "---" {
				closeOffset = lines[j].end
				if closeOffset < len(content) && content[closeOffset] == '\n' {
					closeOffset++
				}
				break
			}
			if strings.HasPrefix(trimmedLine, "--- name:") {
				break // next section started before a close; treat as unclosed
			}
		}
		if closeOffset == -1 {
			return nil, &Error{Line: b.lineIdx + 1, Err: ErrUnclosedHeader}
		}

		yamlBody := yamlBodyBetween(content, b.headerEnd, closeOffset)

		md, err := parseYAML(yamlBody)
		if err != nil {
			return nil, &Error{Line: b.lineIdx + 1, Err: fmt.Errorf("%w: %w", ErrInvalidYAML, err)}
		}
		md.Name = b.name

		sqlEnd := len(content)
		if bi+1 < len(blocks) {
			sqlEnd = sectionEndBefore(lines, blocks[bi+1].lineIdx)
		}
		sections = append(sections, Section{
			Metadata: md,
			SQLStart: closeOffset,
			SQLEnd:   sqlEnd,
			SQL:      content[closeOffset:sqlEnd],
		})
	}
	return sections, nil
}

type lineSpan struct{ start, end int } // end excludes the newline

func splitLinesKeepOffsets(content string) []lineSpan {
	var spans []lineSpan
	start := 0
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			spans = append(spans, lineSpan{start, i})
			start = i + 1
		}
	}
	spans = append(spans, lineSpan{start, len(content)})
	return spans
}

func sectionEndBefore(lines []lineSpan, nextHeaderLine int) int {
	if nextHeaderLine == 0 {
		return 0
	}
	return lines[nextHeaderLine].start
}

func yamlBodyBetween(content string, start, end int) string {
	if start >= end || start >= len(content) {
		return ""
	}
	if end > len(content) {
		end = len(content)
	}
	// end points just past the closing delimiter line's newline; walk back
	// to the start of that delimiter line.
	closeLineStart := strings.LastIndex(content[:end], "---")
	if closeLineStart == -1 || closeLineStart < start {
		return content[start:end]
	}
	return content[start:closeLineStart]
}

// parseDelimiterLine parses "--- name: <id> ---" and returns the identifier.
func parseDelimiterLine(line string) (string, bool) {
	if !strings.HasSuffix(line, "---") {
		return "", false
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(line, "---"), "---")
	inner = strings.TrimSpace(inner)
	if !strings.HasPrefix(inner, "name:") {
		return "", false
	}
	name := strings.TrimSpace(strings.TrimPrefix(inner, "name:"))
	return name, true
}

func lineOf(content string, offset int) int {
	if offset > len(content) {
		offset = len(content)
	}
	return strings.Count(content[:offset], "\n") + 1
}

func parseYAML(body string) (Metadata, error) {
	var raw map[string]any
	if strings.TrimSpace(body) == "" {
		return Metadata{}, nil
	}
	if err := yaml.Unmarshal([]byte(body), &raw); err != nil {
		return Metadata{}, err
	}
	return metadataFromMap(raw), nil
}

func metadataFromMap(raw map[string]any) Metadata {
	var md Metadata
	if raw == nil {
		return md
	}
	if v, ok := raw["name"].(string); ok {
		md.Name = v
	}
	if v, ok := raw["materialization"].(string); ok {
		md.Materialization = Materialization(v)
	}
	if v, ok := raw["owner"].(string); ok {
		md.Owner = v
	}
	if v, ok := raw["description"].(string); ok {
		md.Description = v
	}
	if rawTags, ok := raw["tags"].([]any); ok {
		for _, t := range rawTags {
			if s, ok := t.(string); ok {
				md.Tags = append(md.Tags, s)
			}
		}
	}
	if rawInc, ok := normalizeStringMap(raw["incremental"]); ok {
		var inc Incremental
		if v, ok := rawInc["enabled"].(bool); ok {
			inc.Enabled = v
		}
		if v, ok := rawInc["event_time_column"].(string); ok {
			inc.EventTimeColumn = v
		}
		if v, ok := rawInc["partition_column"].(string); ok {
			inc.PartitionColumn = v
		}
		md.Incremental = inc
	}
	if rawHints, ok := normalizeStringMap(raw["backend_hints"]); ok {
		md.BackendHints = rawHints
	}
	return md
}

func normalizeStringMap(value any) (map[string]any, bool) {
	switch m := value.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			key, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[key] = v
		}
		return out, true
	default:
		return nil, false
	}
}
