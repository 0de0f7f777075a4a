// Package definition loads YAML workflow and approval gate definitions,
// validates them, and serves them from a registry swapped atomically.
package definition

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pitabwire/digiurban/model"
	"gopkg.in/yaml.v3"
)

// ErrEmptyDefinition is returned for a file with no YAML document.
var ErrEmptyDefinition = errors.New("definition file is empty")

// Loader reads one definition file per secretaria from the configured
// directories.
type Loader struct{}

// NewLoader returns a Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadAll parses every *.yaml / *.yml file under directories, recursing into
// subdirectories. Entries whose name starts with "." or "_" are drafts and
// skipped. Within a directory files load in lexical path order.
func (l *Loader) LoadAll(directories []string) ([]model.DomainDefinition, error) {
	var defs []model.DomainDefinition
	for _, dir := range directories {
		paths, err := definitionFiles(dir)
		if err != nil {
			return nil, fmt.Errorf("scanning directory %s: %w", dir, err)
		}
		for _, path := range paths {
			def, err := l.LoadFile(path)
			if err != nil {
				return nil, fmt.Errorf("loading %s: %w", path, err)
			}
			defs = append(defs, def)
		}
	}
	return defs, nil
}

func definitionFiles(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != dir && isDraft(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && isDefinitionFile(d.Name()) {
			paths = append(paths, path)
		}
		return nil
	})
	slices.Sort(paths)
	return paths, err
}

func isDraft(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}

func isDefinitionFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// LoadFile parses a single definition file and records where it came from.
func (l *Loader) LoadFile(path string) (model.DomainDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.DomainDefinition{}, err
	}
	def, err := Parse(data)
	if err != nil {
		return model.DomainDefinition{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	def.SourceFile = path
	return def, nil
}

// Parse decodes one definition document and stamps its SHA-256 checksum.
// Unknown keys are rejected so a mistyped stage field fails the load.
func Parse(data []byte) (model.DomainDefinition, error) {
	var def model.DomainDefinition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			return model.DomainDefinition{}, ErrEmptyDefinition
		}
		return model.DomainDefinition{}, err
	}
	sum := sha256.Sum256(data)
	def.Checksum = fmt.Sprintf("%x", sum)
	return def, nil
}
