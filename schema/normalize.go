package schema

import (
	"strings"
	"unicode"
)

const folderNameMax = 100

// ValidateWorkspaceID ensures a workspace id is non-empty and has no surrounding space.
func ValidateWorkspaceID(id WorkspaceID) error {
	raw := string(id)
	if raw == "" || strings.TrimSpace(raw) != raw {
		return ErrInvalidWorkspace
	}
	return nil
}

// SanitizeFolderName turns a display name into a name safe for a directory entry.
// Path separators, reserved characters and control runes become '-', runs collapse,
// and leading/trailing dots, dashes and spaces are trimmed. Empty results become "untitled".
func SanitizeFolderName(name string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.TrimSpace(name) {
		if unicode.IsControl(r) || strings.ContainsRune(`<>:"/\|?*`, r) {
			if !lastDash {
				b.WriteRune('-')
				lastDash = true
			}
			continue
		}
		b.WriteRune(r)
		lastDash = r == '-'
	}
	out := strings.Trim(b.String(), " .-")
	if runes := []rune(out); len(runes) > folderNameMax {
		out = strings.TrimRight(string(runes[:folderNameMax]), " .-")
	}
	if out == "" {
		return "untitled"
	}
	return out
}
