package files

import (
	"bytes"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/ahrav/go-council/infrastructure/tools"
)

const octetStream = "application/octet-stream"

var imageContentTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/jpg":  true,
	"image/gif":  true,
	"image/webp": true,
}

var textContentTypes = map[string]bool{
	"text/plain":       true,
	"text/csv":         true,
	"text/markdown":    true,
	"text/html":        true,
	"application/json": true,
	"application/xml":  true,
}

// codeExtensions are read as text regardless of their declared type.
var codeExtensions = map[string]bool{
	".py": true, ".js": true, ".ts": true, ".jsx": true, ".tsx": true,
	".go": true, ".rs": true, ".java": true, ".c": true, ".cpp": true,
	".h": true, ".rb": true, ".swift": true, ".kt": true, ".sh": true,
	".yaml": true, ".yml": true, ".toml": true, ".ini": true, ".cfg": true,
	".sql": true, ".r": true, ".m": true, ".cs": true,
}

// resolveContentType strips parameters from declared and sniffs data when
// the client sent no useful type.
func resolveContentType(declared string, data []byte) string {
	ct := mediaType(declared)
	if ct == "" || ct == octetStream {
		ct = mediaType(mimetype.Detect(data).String())
	}
	if ct == "" {
		return octetStream
	}
	return ct
}

func mediaType(v string) string {
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(v))
	}
	return mt
}

// IsImage reports whether contentType is passed to models as an image.
func IsImage(contentType string) bool {
	return imageContentTypes[contentType]
}

// isText reports whether a file is extracted as text.
func isText(contentType, filename string) bool {
	return textContentTypes[contentType] || codeExtensions[strings.ToLower(filepath.Ext(filename))]
}

// extractText returns the readable text of a file, or "" for types that are
// not extracted. PDF, DOCX and XLSX documents go through their parsers and
// yield "" with an error when parsing fails. Invalid UTF-8 is replaced and
// byte order marks are honored. HTML is reduced to its visible text.
func extractText(contentType, filename string, data []byte) (string, error) {
	if extract, ok := documentExtractorFor(contentType, filename); ok {
		return runExtractor(extract, data)
	}
	if !isText(contentType, filename) {
		return "", nil
	}

	decoded, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
	if err != nil {
		return "", err
	}
	if contentType == "text/html" {
		return tools.HTMLToText(bytes.NewReader(decoded))
	}
	return string(decoded), nil
}
