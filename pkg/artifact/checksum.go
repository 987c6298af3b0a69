package artifact

import (
	"crypto/md5"
	"crypto/sha1"
	"fmt"
	"hash"
	"strings"
)

// Algorithm is a checksum algorithm with a companion file in the repository.
type Algorithm string

const (
	MD5  Algorithm = "md5"
	SHA1 Algorithm = "sha1"
)

// Algorithms lists the checksum companions planned for every file, in order.
var Algorithms = []Algorithm{MD5, SHA1}

// Suffix returns the companion file suffix, e.g. ".sha1".
func (a Algorithm) Suffix() string {
	return "." + string(a)
}

// New returns a fresh hash for the algorithm.
func (a Algorithm) New() hash.Hash {
	switch a {
	case MD5:
		return md5.New()
	case SHA1:
		return sha1.New()
	default:
		panic(fmt.Sprintf("artifact: unknown checksum algorithm %q", string(a)))
	}
}

// ChecksumOf splits a companion path into the path it verifies and its algorithm.
func ChecksumOf(path string) (string, Algorithm, bool) {
	for _, a := range Algorithms {
		if strings.HasSuffix(path, a.Suffix()) {
			return strings.TrimSuffix(path, a.Suffix()), a, true
		}
	}
	return "", "", false
}

// ParseChecksum extracts the hex digest from companion file content. Some
// repositories append the file name after the digest ("<hex>  name.jar").
func ParseChecksum(content []byte) string {
	fields := strings.Fields(string(content))
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}
