package util

import (
	"os"
	"path/filepath"
	"strings"
)

// WriteToFile writes the lines to savePath, one per line, creating the
// parent directory when needed
func WriteToFile(savePath string, content ...string) error {
	if err := ensureDir(savePath); err != nil {
		return err
	}
	out := strings.Join(content, "\n")
	if len(content) > 0 {
		out += "\n"
	}
	return os.WriteFile(savePath, []byte(out), 0644)
}

// AppendToFile appends the lines to savePath, one per line
func AppendToFile(savePath string, content ...string) error {
	if err := ensureDir(savePath); err != nil {
		return err
	}
	f, err := os.OpenFile(savePath, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return err
	}

	defer f.Close()

	for _, s := range content {
		if _, err = f.WriteString(s + "\n"); err != nil {
			return err
		}
	}
	return nil
}

func ensureDir(savePath string) error {
	dir := filepath.Dir(savePath)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0777)
}
