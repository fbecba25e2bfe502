package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"appusage/internal/types"
)

func TestDisplayNameForPackage(t *testing.T) {
	tests := []struct {
		pkg      string
		expected string
	}{
		{"com.example.photo_editor", "Photo Editor"},
		{"com.google.android.youtube", "Youtube"},
		{"com.whatsapp", "Whatsapp"},
		{"singleword", "Singleword"},
		{"com.example.multi-part-name", "Multi Part Name"},
		{"", "Unknown"},
		{"trailingdot.", "Trailingdot."},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, displayNameForPackage(tt.pkg), "package %q", tt.pkg)
	}
}

func TestAppDisplayPrefersDirectory(t *testing.T) {
	directory := map[string]types.InstalledApp{
		"com.example.mail": {PackageName: "com.example.mail", AppName: "Mail", Icon: "mail.png"},
		"com.example.noname": {PackageName: "com.example.noname"},
	}

	name, icon := appDisplay(directory, "com.example.mail")
	assert.Equal(t, "Mail", name)
	assert.Equal(t, "mail.png", icon)

	// Known package with no stored display name falls back too
	name, icon = appDisplay(directory, "com.example.noname")
	assert.Equal(t, "Noname", name)
	assert.Empty(t, icon)

	name, icon = appDisplay(directory, "com.example.unknown")
	assert.Equal(t, "Unknown", name)
	assert.Empty(t, icon)
}
