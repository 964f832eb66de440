package utils

import (
	"os"
	"path/filepath"
)

// 确保目录存在
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// 检查文件是否存在
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WriteFile 写入文件，必要时创建父目录
func WriteFile(path string, data []byte, perm os.FileMode) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	return os.WriteFile(path, data, perm)
}
