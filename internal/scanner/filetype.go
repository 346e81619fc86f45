package scanner

import (
	"path/filepath"
	"strings"
)

var fileTypes = map[string]string{
	// Documents
	".txt":  "text",
	".pdf":  "pdf",
	".doc":  "word",
	".docx": "word",
	".xls":  "excel",
	".xlsx": "excel",
	".ppt":  "powerpoint",
	".pptx": "powerpoint",

	// Images
	".jpg":  "image",
	".jpeg": "image",
	".png":  "image",
	".gif":  "image",
	".bmp":  "image",
	".svg":  "image",
	".webp": "image",

	// Audio
	".mp3":  "audio",
	".wav":  "audio",
	".ogg":  "audio",
	".flac": "audio",
	".aac":  "audio",

	// Video
	".mp4": "video",
	".avi": "video",
	".mkv": "video",
	".mov": "video",
	".wmv": "video",

	// Archives
	".zip": "archive",
	".rar": "archive",
	".7z":  "archive",
	".tar": "archive",
	".gz":  "archive",

	// Programming
	".py":   "code",
	".js":   "code",
	".html": "code",
	".css":  "code",
	".java": "code",
	".cpp":  "code",
	".c":    "code",
	".php":  "code",
	".go":   "code",
	".rb":   "code",

	// System
	".exe":    "executable",
	".dll":    "library",
	".so":     "library",
	".sys":    "system",
	".conf":   "config",
	".log":    "log",
	".db":     "database",
	".sqlite": "database",
}

// fileType classifies a file by extension, falling back to "unknown".
func fileType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := fileTypes[ext]; ok {
		return t
	}
	return "unknown"
}
