package dvid

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

const (
	Kilo = 1 << 10
	Mega = 1 << 20
	Giga = 1 << 30
	Tera = 1 << 40
)

// NumCPU is the number of cores available to this process.
var NumCPU = runtime.NumCPU()

// ConvertToAbsolute returns path unchanged if it is already absolute, otherwise
// it is joined to baseDir and cleaned.
func ConvertToAbsolute(path, baseDir string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("cannot convert empty path to absolute")
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	if !filepath.IsAbs(baseDir) {
		var err error
		if baseDir, err = filepath.Abs(baseDir); err != nil {
			return "", err
		}
	}
	return filepath.Join(baseDir, path), nil
}

// FileExists returns true if a file or directory exists at path.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// StringToFloat32s parses a separated string like "1.2,0.8,0.8" into float32 values.
func StringToFloat32s(s, separator string) ([]float32, error) {
	parts := strings.Split(s, separator)
	out := make([]float32, len(parts))
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("bad float %q in %q: %v", part, s, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}
