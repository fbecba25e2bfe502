package services

import (
	"strings"
	"unicode"

	"appusage/internal/types"
)

// displayNameForPackage derives a human-readable fallback name for a package
// the installed-app directory does not know, e.g. "com.example.photo_editor"
// becomes "Photo Editor".
func displayNameForPackage(packageName string) string {
	if packageName == "" {
		return "Unknown"
	}

	segment := packageName
	if idx := strings.LastIndex(packageName, "."); idx >= 0 && idx+1 < len(packageName) {
		segment = packageName[idx+1:]
	}

	words := strings.FieldsFunc(segment, func(r rune) bool {
		return r == '_' || r == '-'
	})
	if len(words) == 0 {
		return packageName
	}

	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// appDisplay resolves the display name and icon for a package from a
// directory snapshot, falling back to a package-derived name.
func appDisplay(directory map[string]types.InstalledApp, packageName string) (name, icon string) {
	if app, ok := directory[packageName]; ok && app.AppName != "" {
		return app.AppName, app.Icon
	}
	return displayNameForPackage(packageName), ""
}
