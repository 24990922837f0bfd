package utils

import (
	"path"
	"strings"

	"github.com/google/uuid"
)

// GenerateUUID generates a new UUID v4.
func GenerateUUID() string {
	return uuid.New().String()
}

// GenerateRequestID generates a request ID (UUID v4).
func GenerateRequestID() string {
	return GenerateUUID()
}

// IsValidUUID checks if a string is a valid UUID.
func IsValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// GenerateObjectName returns a random object name keeping the extension of filename,
// lower-cased, e.g. "IMG_01.JPG" becomes "<uuid>.jpg".
func GenerateObjectName(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if len(ext) > 16 {
		ext = ""
	}
	return GenerateUUID() + ext
}
