// Package s3client reads and writes manifest objects on S3.
package s3client

import (
	"fmt"
	"strings"
)

// Scheme prefixes every S3 location
const Scheme = "s3://"

// IsURI reports whether loc names an S3 object or prefix
func IsURI(loc string) bool {
	return strings.HasPrefix(loc, Scheme)
}

// ParseURI splits an S3 URI into bucket and key. The key may be empty.
func ParseURI(uri string) (bucket, key string, err error) {
	if !IsURI(uri) {
		return "", "", fmt.Errorf("invalid S3 URI: must start with %s", Scheme)
	}

	path := strings.TrimPrefix(uri, Scheme)
	parts := strings.SplitN(path, "/", 2)

	if parts[0] == "" {
		return "", "", fmt.Errorf("invalid S3 URI: missing bucket name")
	}

	bucket = parts[0]
	if len(parts) > 1 {
		key = parts[1]
	}

	return bucket, key, nil
}

// FormatURI is the inverse of ParseURI
func FormatURI(bucket, key string) string {
	return Scheme + bucket + "/" + key
}

// JoinKey appends name to a key prefix, inserting a single slash
func JoinKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return strings.TrimSuffix(prefix, "/") + "/" + name
}
