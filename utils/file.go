package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

func GetFilenameWithoutExt(path string) (name string) {
	name = filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(path))
	return
}

func EnsureDir(path string) (err error) {
	if path == "" {
		return
	}
	err = os.MkdirAll(path, os.ModePerm)
	return
}

// 同目录下的唯一临时文件路径，写完后再改名，避免留下半成品
func GetUniqTmpPath(path, template string) string {
	return fmt.Sprintf(template, path, uuid.NewString())
}

func IsHttpUrl(s string) bool {
	low := strings.ToLower(s)
	return strings.HasPrefix(low, "http://") || strings.HasPrefix(low, "https://")
}

func HasExt(path string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
