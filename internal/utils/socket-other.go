//go:build !(linux || darwin || freebsd || netbsd || openbsd || windows)

package utils

func setSocketOptions(fd uintptr) {}
