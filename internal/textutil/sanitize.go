// Package textutil contains string helpers shared across packages.
package textutil

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxFolderName caps generated folder names in bytes.
const MaxFolderName = 120

var folderReplacer = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
)

// SanitizeFolderName turns a free-form title into a portable folder name.
// Unsafe characters become underscores, whitespace runs collapse to a single
// space, leading and trailing dots are dropped, and the result is capped at
// MaxFolderName bytes on a rune boundary.
func SanitizeFolderName(name string) string {
	name = folderReplacer.Replace(name)
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, name)
	name = strings.Join(strings.Fields(name), " ")
	name = strings.Trim(name, ". ")
	if len(name) > MaxFolderName {
		name = strings.TrimRight(Truncate(name, MaxFolderName), ". ")
	}
	return name
}

// Truncate caps s at n bytes without splitting a multi-byte rune.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 0 {
		return ""
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// FolderName builds the per-item folder name from a title and a stable id.
// The id suffix keeps two videos with the same title apart.
func FolderName(title, id string) string {
	base := SanitizeFolderName(title)
	id = SanitizeFolderName(id)
	switch {
	case base == "" && id == "":
		return "untitled"
	case base == "":
		return id
	case id == "":
		return base
	default:
		return base + "_" + id
	}
}
