package orchestrator

import (
	"path"
	"strings"
)

// PlainText is the language of files with an unknown extension.
const PlainText = "plaintext"

var languages = map[string]string{
	".html": "html",
	".htm":  "html",
	".css":  "css",
	".scss": "scss",
	".js":   "javascript",
	".mjs":  "javascript",
	".cjs":  "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".json": "json",
	".md":   "markdown",
	".py":   "python",
	".go":   "go",
	".rs":   "rust",
	".java": "java",
	".rb":   "ruby",
	".php":  "php",
	".sh":   "shell",
	".yml":  "yaml",
	".yaml": "yaml",
	".xml":  "xml",
	".svg":  "xml",
	".sql":  "sql",
	".vue":  "vue",
	".toml": "toml",
}

// LanguageFor derives a file's language tag from its extension.
func LanguageFor(p string) string {
	if lang, ok := languages[strings.ToLower(path.Ext(p))]; ok {
		return lang
	}
	return PlainText
}
