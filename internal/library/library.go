// Package library manages the directory of saved .script files.
package library

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Ext is the suffix every stored script carries.
const Ext = ".script"

var (
	ErrNotFound    = errors.New("script not found")
	ErrInvalidName = errors.New("invalid script name")
)

// ScriptInfo describes one stored script.
type ScriptInfo struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

type Library struct {
	dir string
}

// New opens the library rooted at dir, creating the directory if needed.
func New(dir string) (*Library, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create script dir: %w", err)
	}
	return &Library{dir: dir}, nil
}

func (l *Library) Dir() string { return l.dir }

// Normalize validates name and appends Ext when missing.
func Normalize(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if !strings.HasSuffix(name, Ext) {
		name += Ext
	}
	return name, nil
}

// Path returns the file path for name without checking it exists.
func (l *Library) Path(name string) (string, error) {
	n, err := Normalize(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.dir, n), nil
}

// List returns stored scripts, most recently modified first.
func (l *Library) List() ([]ScriptInfo, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, err
	}
	scripts := []ScriptInfo{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Ext) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		scripts = append(scripts, ScriptInfo{
			Name:     e.Name(),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}
	sort.SliceStable(scripts, func(i, j int) bool {
		if scripts[i].Modified.Equal(scripts[j].Modified) {
			return scripts[i].Name < scripts[j].Name
		}
		return scripts[i].Modified.After(scripts[j].Modified)
	})
	return scripts, nil
}

// Get returns the content of a stored script.
func (l *Library) Get(name string) (string, error) {
	path, err := l.Path(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Save writes content under name, replacing any existing script, and
// returns the stored name.
func (l *Library) Save(name, content string) (string, error) {
	path, err := l.Path(name)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("save %s: %w", filepath.Base(path), err)
	}
	return filepath.Base(path), nil
}

func (l *Library) Delete(name string) error {
	path, err := l.Path(name)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
	}
	return err
}
