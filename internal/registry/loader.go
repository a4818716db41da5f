package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"nanochatd/internal/backend"
	"nanochatd/internal/common/fsutil"
	"nanochatd/pkg/types"
)

var quantRe = regexp.MustCompile(`(?i)(?:^|[-_.])((?:i?q\d+(?:_[a-z0-9]+)*)|f16|f32|bf16)$`)

// LoadDir scans a directory for *.gguf files and builds a registry from them.
// ID is the full filename; Family comes from the GGUF header when readable.
// A missing directory yields an empty registry.
func LoadDir(dir string) ([]types.Model, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, nil
	}
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		models = append(models, Describe(filepath.Join(abs, name)))
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// Describe builds a model entry for one GGUF file.
func Describe(path string) types.Model {
	name := filepath.Base(path)
	m := types.Model{
		ID:      name,
		Object:  "model",
		OwnedBy: "nanochatd",
		Backend: string(backend.KindQuantized),
		Path:    path,
		Quant:   ParseQuant(name),
	}
	if fi, err := os.Stat(path); err == nil {
		m.Created = fi.ModTime().Unix()
	}
	if md, err := backend.ReadGGUFMetadata(path); err == nil {
		m.Family = md.Architecture()
	}
	return m
}

// ParseQuant extracts the quantization tag from a file name, e.g. Q4_K_M.
func ParseQuant(name string) string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if m := quantRe.FindStringSubmatch(stem); m != nil {
		return strings.ToUpper(m[1])
	}
	return ""
}
