// Package s3io provides utilities for working with S3: object key derivation
// and presigned upload URLs.
package s3io

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

const keyPrefix = "v2/uploads"

// maxFileNameLen bounds the file-name segment of an object key.
const maxFileNameLen = 128

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SanitizeFileName normalizes a user-supplied file name into a safe object key
// segment. The same function must run when the upload URL is issued and when
// the upload is confirmed; the derived keys must be byte-identical or the
// processing worker cannot find the object.
func SanitizeFileName(name string) string {
	// Drop directory components, whichever separator the client used.
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)

	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, "._")

	if len(name) > maxFileNameLen {
		ext := path.Ext(name)
		if len(ext) >= maxFileNameLen {
			ext = ""
		}
		name = name[:maxFileNameLen-len(ext)] + ext
	}

	if name == "" {
		return "file"
	}
	return name
}

// ObjectKey constructs the S3 key for a job's uploaded document. The file name
// must already be sanitized.
func ObjectKey(jobID, safeFileName string) string {
	return fmt.Sprintf("%s/%s/%s", keyPrefix, jobID, safeFileName)
}
