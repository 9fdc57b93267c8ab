package store

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path/filepath"
)

const (
	documentSuffix = ".doc"
	termSuffix     = ".term"
	// maxEncodedName keeps names, suffix included, under the common
	// 255-byte filesystem limit.
	maxEncodedName = 240
)

// encodeKey maps a URL or term text to a file name. Query escaping is
// reversible, so distinct keys never share a name; keys whose escaped
// form is too long are hashed and the record's embedded key is checked on
// load instead.
func encodeKey(key string) string {
	escaped := url.QueryEscape(key)
	if len(escaped) <= maxEncodedName {
		return escaped
	}
	sum := sha256.Sum256([]byte(key))
	return "~" + hex.EncodeToString(sum[:])
}

func (s *FileStore) documentPath(u string) string {
	return filepath.Join(s.dir, documentsDir, encodeKey(u)+documentSuffix)
}

func (s *FileStore) termPath(text string) string {
	return filepath.Join(s.dir, termsDir, encodeKey(text)+termSuffix)
}
