package deployer

import (
	"mime"
	"net/http"
)

// sniffLen matches the window http.DetectContentType inspects.
const sniffLen = 512

// detectContentType resolves a content type for the asset: extension table
// first, content sniffing second. It returns "" when nothing could be
// resolved; detection never fails an upload.
func detectContentType(a Asset) string {
	if ext := a.Extension(); ext != "" {
		if ct := mime.TypeByExtension("." + ext); ct != "" {
			return ct
		}
	}

	data, err := a.Contents()
	if err != nil || len(data) == 0 {
		return ""
	}
	if len(data) > sniffLen {
		data = data[:sniffLen]
	}
	return http.DetectContentType(data)
}
