package assets

import (
	_ "embed"
	"fmt"
	"os"
)

//go:embed dex.yaml
var dexYAML []byte

// Dex returns the entity table: the file at path when set, otherwise the embedded default.
func Dex(path string) ([]byte, error) {
	if path == "" {
		return dexYAML, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dex file %s: %w", path, err)
	}
	return b, nil
}
