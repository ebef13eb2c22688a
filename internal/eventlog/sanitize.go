package eventlog

import (
	"encoding/json"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	systemReminderPattern = regexp.MustCompile(`(?s)<system-reminder>.*?</system-reminder>`)
	mcpToolNamePattern    = regexp.MustCompile(`mcp__\w+?__(\w+)`)
	attachedFilesPattern  = regexp.MustCompile(`(?s)<attached-files>(.*?)</attached-files>`)
	legacyFileLinePattern = regexp.MustCompile(`-\s+(.+?)\s+\(([^)]+)\)`)

	pathTraversalPattern = regexp.MustCompile(`\.\.[/\\]`)
	controlCharPattern   = regexp.MustCompile(`[\x00-\x1f\x7f]`)
	dangerousCharPattern = regexp.MustCompile(`[<>:"|?*\\]`)
	whitespaceRunPattern = regexp.MustCompile(`\s+`)
	mimeAllowedPattern   = regexp.MustCompile(`[^a-zA-Z0-9/\-+.]`)
	extAllowedPattern    = regexp.MustCompile(`[^a-zA-Z0-9]`)
	sizeAllowedPattern   = regexp.MustCompile(`[^0-9.a-zA-Z ]`)
)

const (
	maxFilenameLength  = 255
	maxExtensionLength = 10
	maxMimeLength      = 100
	maxFileSize        = 1_000_000_000_000_000
)

// StripSystemReminders removes <system-reminder>…</system-reminder>
// blocks before any text reaches a user-facing event. Grounded on
// trace_processor.py::strip_system_reminders.
func StripSystemReminders(text string) string {
	if !strings.Contains(text, "<system-reminder>") {
		return text
	}
	return systemReminderPattern.ReplaceAllString(text, "")
}

// SanitizeToolNames rewrites mcp__<server>__<Tool> to just Tool.
// Grounded on trace_processor.py::sanitize_tool_names_in_text.
func SanitizeToolNames(text string) string {
	if !strings.Contains(text, "mcp__") {
		return text
	}
	return mcpToolNamePattern.ReplaceAllString(text, "$1")
}

// attachedFile is one sanitized entry of a transformed attached-files
// block.
type attachedFile struct {
	Name          string `json:"name"`
	Size          int64  `json:"size,omitempty"`
	SizeFormatted string `json:"size_formatted,omitempty"`
	MimeType      string `json:"mime_type,omitempty"`
	Extension     string `json:"extension,omitempty"`
	LastModified  string `json:"last_modified,omitempty"`
}

var isoDatePrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

// TransformAttachedFiles converts a legacy bullet-list or YAML
// <attached-files> block into a single <ag3ntum-attached-file>[JSON]
// tag, with every field sanitized. Grounded on
// trace_processor.py::transform_attached_files.
func TransformAttachedFiles(text string) string {
	if !strings.Contains(text, "<attached-files>") {
		return text
	}
	return attachedFilesPattern.ReplaceAllStringFunc(text, func(block string) string {
		m := attachedFilesPattern.FindStringSubmatch(block)
		if m == nil {
			return block
		}
		content := m[1]

		var files []attachedFile
		if strings.Contains(content, "files:") || strings.Contains(content, "- name:") {
			files, _ = parseYAMLFiles(content)
		} else {
			files = parseLegacyFiles(content)
		}
		if len(files) == 0 {
			return block
		}

		payload, err := json.Marshal(files)
		if err != nil {
			return block
		}
		return "<ag3ntum-attached-file>" + string(payload) + "</ag3ntum-attached-file>"
	})
}

func parseYAMLFiles(content string) ([]attachedFile, bool) {
	var doc struct {
		Files []struct {
			Name         string      `yaml:"name"`
			Size         interface{} `yaml:"size"`
			Formatted    string      `yaml:"size_formatted"`
			MimeType     string      `yaml:"mime_type"`
			Extension    string      `yaml:"extension"`
			LastModified string      `yaml:"last_modified"`
		} `yaml:"files"`
	}
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return nil, false
	}
	out := make([]attachedFile, 0, len(doc.Files))
	for _, f := range doc.Files {
		if f.Name == "" {
			continue
		}
		entry := attachedFile{Name: sanitizeFilename(f.Name)}
		switch v := f.Size.(type) {
		case int:
			entry.Size = clampSize(int64(v))
		case int64:
			entry.Size = clampSize(v)
		case float64:
			entry.Size = clampSize(int64(v))
		}
		if f.Formatted != "" {
			entry.SizeFormatted = sanitizeSizeFormatted(f.Formatted)
		}
		if f.MimeType != "" {
			if m := sanitizeMimeType(f.MimeType); m != "" {
				entry.MimeType = m
			}
		}
		if f.Extension != "" {
			if e := sanitizeExtension(f.Extension); e != "" {
				entry.Extension = e
			}
		}
		if f.LastModified != "" && len(f.LastModified) <= 30 && isoDatePrefix.MatchString(f.LastModified) {
			entry.LastModified = f.LastModified
		}
		out = append(out, entry)
	}
	return out, len(out) > 0
}

func clampSize(v int64) int64 {
	if v < 0 {
		return 0
	}
	if v > maxFileSize {
		return maxFileSize
	}
	return v
}

func parseLegacyFiles(content string) []attachedFile {
	matches := legacyFileLinePattern.FindAllStringSubmatch(content, -1)
	out := make([]attachedFile, 0, len(matches))
	for _, m := range matches {
		out = append(out, attachedFile{
			Name:          sanitizeFilename(m[1]),
			SizeFormatted: sanitizeSizeFormatted(m[2]),
		})
	}
	return out
}

func sanitizeFilename(name string) string {
	s := controlCharPattern.ReplaceAllString(name, "")
	s = strings.ReplaceAll(s, "../", "")
	s = strings.ReplaceAll(s, `..\`, "")
	s = pathTraversalPattern.ReplaceAllString(s, "")
	s = dangerousCharPattern.ReplaceAllString(s, "_")
	s = strings.Trim(s, " .")
	s = whitespaceRunPattern.ReplaceAllString(s, " ")

	if len(s) > maxFilenameLength {
		lastDot := strings.LastIndex(s, ".")
		if lastDot > 0 && len(s)-lastDot <= maxExtensionLength+1 {
			ext := s[lastDot:]
			base := s[:maxFilenameLength-len(ext)-3]
			s = base + "..." + ext
		} else {
			s = s[:maxFilenameLength-3] + "..."
		}
	}
	if s == "" {
		return "unnamed_file"
	}
	return s
}

func sanitizeMimeType(mime string) string {
	s := strings.ToLower(mimeAllowedPattern.ReplaceAllString(mime, ""))
	if len(s) > maxMimeLength {
		s = s[:maxMimeLength]
	}
	return s
}

func sanitizeExtension(ext string) string {
	s := strings.ToLower(extAllowedPattern.ReplaceAllString(ext, ""))
	if len(s) > maxExtensionLength {
		s = s[:maxExtensionLength]
	}
	return s
}

func sanitizeSizeFormatted(size string) string {
	s := sizeAllowedPattern.ReplaceAllString(size, "")
	if len(s) > 20 {
		s = s[:20]
	}
	return s
}
