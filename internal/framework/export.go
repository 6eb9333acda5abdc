package framework

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ExportFilename is {framework}_{session_id}.{format}
func ExportFilename(t Type, id, format string) string {
	return fmt.Sprintf("%s_%s.%s", t, id, format)
}

// ParseExportFilename splits a download name into its parts. Framework types
// may contain underscores; session IDs do not.
func ParseExportFilename(name string) (Type, string, string, error) {
	dot := strings.LastIndex(name, ".")
	under := strings.LastIndex(name, "_")
	if dot < 0 || under < 0 || under > dot {
		return "", "", "", invalid("file", "expected {framework}_{session_id}.{format}")
	}
	t, err := ParseType(name[:under])
	if err != nil {
		return "", "", "", err
	}
	format, err := ParseExportFormat(name[dot+1:])
	if err != nil {
		return "", "", "", err
	}
	id := name[under+1 : dot]
	if id == "" {
		return "", "", "", invalid("file", "missing session id")
	}
	return t, id, format, nil
}

// Download is a rendered export
type Download struct {
	Filename    string
	ContentType string
	Body        []byte
}

// RenderDownload renders an export file for a session owned by userID. Only
// json and markdown are rendered; other allowed formats return
// ErrExportNotRendered.
func (s *Service) RenderDownload(ctx context.Context, userID, filename string) (*Download, error) {
	t, id, format, err := ParseExportFilename(filename)
	if err != nil {
		return nil, err
	}
	sess, err := s.GetTyped(ctx, userID, t, id)
	if err != nil {
		return nil, err
	}

	switch format {
	case "json":
		body, err := json.MarshalIndent(sess, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encoding export: %w", err)
		}
		return &Download{Filename: filename, ContentType: "application/json", Body: body}, nil
	case "markdown":
		body, err := RenderMarkdown(sess)
		if err != nil {
			return nil, err
		}
		return &Download{Filename: filename, ContentType: "text/markdown; charset=utf-8", Body: body}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrExportNotRendered, format)
	}
}

// RenderMarkdown writes the session as a markdown document. Data fields appear
// in declaration order.
func RenderMarkdown(sess *Session) ([]byte, error) {
	var buf bytes.Buffer
	name := string(sess.Type)
	if def, ok := registry[sess.Type]; ok {
		name = def.name
	}

	fmt.Fprintf(&buf, "# %s\n\n", sess.Title)
	fmt.Fprintf(&buf, "- **Framework:** %s\n", name)
	fmt.Fprintf(&buf, "- **Status:** %s\n", sess.Status)
	fmt.Fprintf(&buf, "- **Version:** %d\n", sess.Version)
	fmt.Fprintf(&buf, "- **Updated:** %s\n", sess.UpdatedAt.UTC().Format("2006-01-02 15:04 MST"))
	if len(sess.Tags) > 0 {
		fmt.Fprintf(&buf, "- **Tags:** %s\n", strings.Join(sess.Tags, ", "))
	}
	if sess.Description != "" {
		fmt.Fprintf(&buf, "\n%s\n", sess.Description)
	}

	raw, err := json.Marshal(sess.Data)
	if err != nil {
		return nil, fmt.Errorf("encoding session data: %w", err)
	}
	fields := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(raw, fields); err != nil {
		return nil, fmt.Errorf("decoding session data: %w", err)
	}
	for pair := fields.Oldest(); pair != nil; pair = pair.Next() {
		writeField(&buf, pair.Key, pair.Value)
	}

	if len(sess.AISuggestions) > 0 {
		buf.WriteString("\n## AI Suggestions\n\n```json\n")
		b, _ := json.MarshalIndent(sess.AISuggestions, "", "  ")
		buf.Write(b)
		buf.WriteString("\n```\n")
	}
	return buf.Bytes(), nil
}

func writeField(buf *bytes.Buffer, key string, value json.RawMessage) {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) ||
		bytes.Equal(trimmed, []byte(`""`)) || bytes.Equal(trimmed, []byte("[]")) {
		return
	}

	fmt.Fprintf(buf, "\n## %s\n\n", heading(key))

	var text string
	if json.Unmarshal(trimmed, &text) == nil {
		fmt.Fprintf(buf, "%s\n", text)
		return
	}

	var items []json.RawMessage
	if json.Unmarshal(trimmed, &items) == nil {
		for _, item := range items {
			fmt.Fprintf(buf, "- %s\n", inline(item))
		}
		return
	}

	fmt.Fprintf(buf, "```json\n%s\n```\n", trimmed)
}

// inline renders a list item: strings as-is, objects as "key: value" pairs.
func inline(item json.RawMessage) string {
	var text string
	if json.Unmarshal(item, &text) == nil {
		return text
	}
	var obj map[string]any
	if json.Unmarshal(item, &obj) == nil {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if v := obj[k]; v != nil && v != "" {
				parts = append(parts, fmt.Sprintf("%s: %v", k, v))
			}
		}
		return strings.Join(parts, "; ")
	}
	return string(item)
}

func heading(key string) string {
	words := strings.Split(key, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
