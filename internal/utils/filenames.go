package utils

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	MaxFileNameLength = 255
	FallbackFileName  = "download.tmp"
)

var invalidNameChars = strings.NewReplacer(
	"<", "_", ">", "_", ":", "_", `"`, "_",
	"/", "_", `\`, "_", "|", "_", "?", "_", "*", "_",
)

var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// FileNameFromURL derives a local file name from the last path segment of
// link. Names without an extension get a synthetic name stamped with now.
func FileNameFromURL(link string, now time.Time) string {
	segment := ""
	if parsed, err := url.Parse(link); err == nil {
		segment = parsed.Path[strings.LastIndex(parsed.Path, "/")+1:]
	} else {
		segment = link[strings.LastIndex(link, "/")+1:]
		if i := strings.IndexAny(segment, "?#"); i != -1 {
			segment = segment[:i]
		}
	}
	name := SanitizeFileName(segment)
	if segment == "" || name == FallbackFileName || !strings.Contains(name, ".") {
		return fmt.Sprintf("download_%d.tmp", now.UnixMilli())
	}
	return name
}

// SanitizeFileName makes name safe on Windows, macOS and Linux.
func SanitizeFileName(name string) string {
	sanitized := invalidNameChars.Replace(name)
	sanitized = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, sanitized)
	sanitized = trimNameEdges(sanitized)
	if sanitized == "" {
		return FallbackFileName
	}

	stem, ext := splitExt(sanitized)
	if isReservedName(stem) {
		stem += "_file"
	}
	sanitized = trimNameEdges(truncateName(stem, ext))
	// truncation and trimming can expose a reserved stem again
	if stem, ext := splitExt(sanitized); isReservedName(stem) {
		sanitized = trimNameEdges(truncateName(stem+"_file", ext))
	}
	if sanitized == "" {
		return FallbackFileName
	}
	return sanitized
}

func trimNameEdges(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '.'
	})
}

// splitExt splits at the last dot; a leading dot does not start an extension.
func splitExt(name string) (string, string) {
	lastDot := strings.LastIndex(name, ".")
	if lastDot <= 0 {
		return name, ""
	}
	return name[:lastDot], name[lastDot:]
}

func isReservedName(stem string) bool {
	return reservedNames[strings.ToUpper(stem)]
}

// truncateName keeps the extension and shortens the stem. An extension too long
// to leave room for a stem is cut along with everything else.
func truncateName(stem, ext string) string {
	stemLen, extLen := utf8.RuneCountInString(stem), utf8.RuneCountInString(ext)
	if stemLen+extLen <= MaxFileNameLength {
		return stem + ext
	}
	if extLen >= MaxFileNameLength {
		return string([]rune(stem + ext)[:MaxFileNameLength])
	}
	return string([]rune(stem)[:MaxFileNameLength-extLen]) + ext
}
