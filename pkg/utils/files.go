package utils

import (
	"path/filepath"
	"strings"
)

func GetPathInfo(relPath string) (fullPath string, parentDir string, err error) {
	// Convert to absolute path (resolves ../../ and cleans the path)
	fullPath, err = filepath.Abs(relPath)
	if err != nil {
		return "", "", err
	}

	// Get the directory containing the file
	parentDir = filepath.Dir(fullPath)

	return fullPath, parentDir, nil
}

// OutputPath swaps the extension of inPath for ext. The result lands in
// outDir when it is set, otherwise next to the input.
func OutputPath(inPath, outDir, ext string) (string, error) {
	fullPath, parentDir, err := GetPathInfo(inPath)
	if err != nil {
		return "", err
	}

	base := filepath.Base(fullPath)
	base = strings.TrimSuffix(base, filepath.Ext(base)) + ext

	if outDir == "" {
		return filepath.Join(parentDir, base), nil
	}
	return filepath.Join(outDir, base), nil
}
