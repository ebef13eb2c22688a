package eventlog

import "strings"

// errorPlaceholders are values that mean "no error" rather than an
// actual error description.
var errorPlaceholders = map[string]bool{
	"none": true, "none yet": true, "no error": true, "no errors": true,
	"n/a": true, "na": true, "null": true, "undefined": true,
	"empty": true, "-": true, "": true,
}

// NormalizeErrorValue filters placeholder text ("none", "n/a", "no
// errors", ...) down to the empty string so downstream consumers can
// treat field absence and "no error" uniformly. Grounded on
// structured_output.py::normalize_error_value.
func NormalizeErrorValue(value string) string {
	if value == "" {
		return ""
	}
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return ""
	}
	if errorPlaceholders[normalized] {
		return ""
	}
	if strings.HasPrefix(normalized, "none yet") || strings.HasPrefix(normalized, "no error") {
		return ""
	}
	return strings.TrimSpace(value)
}

// ParseStructuredOutput extracts a "--- k: v --- body" header block
// from the start of a message, tolerating a leading fenced-code-block
// wrapper. Returns the parsed fields (keys lowercased, "error"
// normalized via NormalizeErrorValue) and the remaining body. If no
// valid header is present, fields is empty and body is the original
// text. Grounded on structured_output.py::parse_structured_output.
func ParseStructuredOutput(text string) (map[string]string, string) {
	if text == "" {
		return map[string]string{}, text
	}

	payload := text
	if strings.HasPrefix(payload, "```") {
		fenceEnd := strings.Index(payload, "\n")
		if fenceEnd == -1 {
			return map[string]string{}, text
		}
		payload = payload[fenceEnd+1:]
	}

	lines := strings.Split(payload, "\n")
	if len(lines) < 3 || strings.TrimSpace(lines[0]) != "---" {
		return map[string]string{}, text
	}

	endIndex := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			endIndex = i
			break
		}
	}
	if endIndex == -1 {
		return map[string]string{}, text
	}

	fields := make(map[string]string)
	for _, line := range lines[1:endIndex] {
		if strings.TrimSpace(line) == "" || !strings.Contains(line, ":") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		key := strings.ToLower(strings.TrimSpace(parts[0]))
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		if key == "error" {
			value = NormalizeErrorValue(value)
		}
		fields[key] = value
	}

	bodyLines := lines[endIndex+1:]
	if len(bodyLines) > 0 && strings.HasPrefix(strings.TrimSpace(bodyLines[0]), "```") {
		bodyLines = bodyLines[1:]
	}
	body := strings.Join(bodyLines, "\n")
	body = strings.TrimPrefix(body, "\n")

	return fields, body
}
