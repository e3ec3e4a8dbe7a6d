// Package extractor locates the JSON event object inside whatever bytes a
// Hikvision device pushes. Devices send plain JSON, well-formed multipart, and
// occasionally multipart with missing or mangled boundary headers, so this is
// deliberately best-effort rather than a conformant multipart parser.
package extractor

import (
	"bytes"
	"encoding/json"
	"strings"
)

const boundarySniffWindow = 500

// jsonStartMarkers are the byte sequences that plausibly open a JSON object
// inside a binary body, tried in order.
var jsonStartMarkers = [][]byte{
	[]byte(`{"`),
	[]byte("{\r\n"),
	[]byte("{\n"),
	[]byte(`{ "`),
}

// Extract returns the first JSON object found in body, or ok=false when no
// decodable JSON is present. It never fails on malformed input.
func Extract(body []byte, contentType string) (json.RawMessage, bool) {
	if len(body) == 0 {
		return nil, false
	}

	if !strings.Contains(strings.ToLower(contentType), "multipart") {
		if obj, ok := decodeObject(body); ok {
			return obj, true
		}
	}

	if obj, ok := extractFromMultipart(body, contentType); ok {
		return obj, true
	}

	return extractFromBinary(body)
}

// decodeObject validates that data is a single JSON object.
func decodeObject(data []byte) (json.RawMessage, bool) {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, false
	}
	return json.RawMessage(data), true
}

// extractFromMultipart splits the body on the boundary token and decodes the
// first part that mentions application/json. The boundary comes from the
// Content-Type header when present, otherwise it is sniffed from the body.
func extractFromMultipart(body []byte, contentType string) (json.RawMessage, bool) {
	boundary := boundaryFromContentType(contentType)
	if boundary == "" {
		boundary = sniffBoundary(body)
	}
	if boundary == "" {
		return nil, false
	}

	parts := bytes.Split(body, []byte("--"+boundary))
	for _, part := range parts {
		if !bytes.Contains(part, []byte("application/json")) {
			continue
		}
		idx := bytes.Index(part, []byte("\r\n\r\n"))
		if idx < 0 {
			continue
		}
		content := part[idx+4:]
		start := bytes.IndexByte(content, '{')
		end := bytes.LastIndexByte(content, '}')
		if start < 0 || end < start {
			continue
		}
		if obj, ok := decodeObject(content[start : end+1]); ok {
			return obj, true
		}
	}
	return nil, false
}

func boundaryFromContentType(contentType string) string {
	_, after, found := strings.Cut(contentType, "boundary=")
	if !found {
		return ""
	}
	boundary, _, _ := strings.Cut(after, ";")
	return strings.Trim(strings.TrimSpace(boundary), `"`)
}

// sniffBoundary scans the first lines of the body for something that looks
// like a boundary delimiter: a line starting with "--" and longer than 10
// bytes. Best-effort only; documented limitation, not a multipart parser.
func sniffBoundary(body []byte) string {
	window := body
	if len(window) > boundarySniffWindow {
		window = window[:boundarySniffWindow]
	}
	for _, line := range bytes.Split(window, []byte("\r\n")) {
		if bytes.HasPrefix(line, []byte("--")) && len(line) > 10 {
			return string(asciiOnly(line[2:]))
		}
	}
	return ""
}

func asciiOnly(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		if c < 128 {
			out = append(out, c)
		}
	}
	return out
}

// extractFromBinary finds a JSON start marker in raw bytes and walks a
// brace-depth scanner to the matching close brace. Braces inside quoted
// strings don't count; backslash escapes keep an escaped quote from toggling
// string state; bytes outside ASCII are opaque to the scanner.
func extractFromBinary(body []byte) (json.RawMessage, bool) {
	start := -1
	for _, marker := range jsonStartMarkers {
		if pos := bytes.Index(body, marker); pos >= 0 {
			start = pos
			break
		}
	}
	if start < 0 {
		return nil, false
	}

	candidate := body[start:]
	end := scanObjectEnd(candidate)
	if end <= 0 {
		return nil, false
	}

	sanitized := strings.ToValidUTF8(string(candidate[:end]), "�")
	return decodeObject([]byte(sanitized))
}

// scanObjectEnd returns the exclusive end offset of the JSON object starting
// at data[0], or -1 if the braces never balance.
func scanObjectEnd(data []byte) int {
	depth := 0
	inString := false
	escaped := false

	for i, b := range data {
		if b >= 128 {
			continue
		}
		if escaped {
			escaped = false
			continue
		}
		switch b {
		case '\\':
			escaped = true
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return i + 1
				}
			}
		}
	}
	return -1
}
