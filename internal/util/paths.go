package util

import (
	"path"
	"strings"
)

// S3 schemes accepted on user-provided resource paths.
var s3Schemes = []string{"s3", "s3a", "s3n", "s3p"}

// PathScheme returns the scheme prefix of p, or "" when p has none.
func PathScheme(p string) string {
	idx := strings.Index(p, "://")
	if idx <= 0 {
		return ""
	}
	return p[:idx]
}

// IsS3Path reports whether p carries one of the s3, s3a, s3n, s3p schemes.
func IsS3Path(p string) bool {
	scheme := PathScheme(p)
	for _, s := range s3Schemes {
		if scheme == s {
			return true
		}
	}
	return false
}

// PurePath strips the scheme prefix and any leading slashes from p,
// e.g. "s3://bucket/a/b.jar" -> "bucket/a/b.jar".
func PurePath(p string) string {
	if scheme := PathScheme(p); scheme != "" {
		p = p[len(scheme)+len("://"):]
	}
	return strings.TrimLeft(p, "/")
}

// ReviseToS3pSchema forces the scheme of an S3 path to "s3p".
// Non-S3 paths are returned untouched.
func ReviseToS3pSchema(p string) string {
	if !IsS3Path(p) {
		return p
	}
	return "s3p://" + PurePath(p)
}

// PathBaseName returns the last segment of p, with any scheme stripped first.
func PathBaseName(p string) string {
	return path.Base(PurePath(p))
}
