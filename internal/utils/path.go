package utils

import (
	"runtime"
	"strings"
)

// ToRemotePath converts a local path to the forward-slash form remote SFTP
// servers expect.
func ToRemotePath(path string) string {
	if runtime.GOOS == "windows" {
		return strings.ReplaceAll(path, "\\", "/")
	}
	return path
}

// ToLocalPath converts a remote path to the local separator convention.
func ToLocalPath(path string) string {
	if runtime.GOOS == "windows" {
		return strings.ReplaceAll(path, "/", "\\")
	}
	return path
}
