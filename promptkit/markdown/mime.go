package markdown

import "strings"

// MimeInference picks a MIME type for a URL whose response carried no
// Content-Type header. It must be pure.
type MimeInference func(url string) string

// InferMimeType maps the trailing extension of url to a MIME type: pdf is
// application/pdf, anything else is image/<ext>.
func InferMimeType(url string) string {
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	ext := strings.ToLower(url[strings.LastIndex(url, ".")+1:])
	if ext == "pdf" {
		return "application/pdf"
	}
	return "image/" + ext
}
