package api

import (
	"embed"
	"html/template"
	"path/filepath"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// fileIcon picks a listing icon by extension, defaulting to a plain document.
func fileIcon(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp":
		return "\U0001F5BC️"
	case ".mp3", ".wav", ".ogg", ".m4a", ".flac":
		return "\U0001F3B5"
	case ".mp4", ".avi", ".mov", ".wmv", ".mkv":
		return "\U0001F3A5"
	case ".zip", ".rar", ".7z", ".tar", ".gz":
		return "\U0001F4E6"
	case ".py", ".js", ".go", ".html", ".css", ".json":
		return "\U0001F4DD"
	default:
		return "\U0001F4C4"
	}
}

const dirIcon = "\U0001F4C2"
