// Package prompt renders LLM prompts from text/template sources.
package prompt

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"text/template"
)

// Template is a parsed prompt. File-backed templates can be reloaded;
// inline templates are fixed at construction.
type Template struct {
	name  string
	path  string
	funcs template.FuncMap

	mu   sync.RWMutex
	tmpl *template.Template
	hash string
}

// Funcs are available to every template. Entries in a caller-supplied map
// take precedence.
var Funcs = template.FuncMap{
	"upper": strings.ToUpper,
	"fixed": func(prec int, v float64) string { return strconv.FormatFloat(v, 'f', prec, 64) },
	"pct":   func(v float64) string { return strconv.FormatFloat(v*100, 'f', 1, 64) + "%" },
}

// NewTemplate parses the template at path.
func NewTemplate(path string, funcs template.FuncMap) (*Template, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("prompt template path is empty")
	}
	t := &Template{name: filepath.Base(path), path: path, funcs: funcs}
	if err := t.reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// Parse builds an inline template from text.
func Parse(name, text string, funcs template.FuncMap) (*Template, error) {
	t := &Template{name: name, funcs: funcs}
	if err := t.parse([]byte(text)); err != nil {
		return nil, err
	}
	return t, nil
}

// Render executes the template with the provided data and returns the rendered string.
func (t *Template) Render(data any) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute prompt template %q: %w", t.name, err)
	}
	return buf.String(), nil
}

// Reload reparses a file-backed template from disk.
func (t *Template) Reload() error {
	if t.path == "" {
		return nil
	}
	return t.reload()
}

// Digest returns the sha256 hash of the template source.
func (t *Template) Digest() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.hash
}

func (t *Template) reload() error {
	data, err := os.ReadFile(t.path)
	if err != nil {
		return fmt.Errorf("read prompt template %q: %w", t.path, err)
	}
	return t.parse(data)
}

func (t *Template) parse(data []byte) error {
	funcs := template.FuncMap{}
	for k, v := range Funcs {
		funcs[k] = v
	}
	for k, v := range t.funcs {
		funcs[k] = v
	}
	tmpl, err := template.New(t.name).Option("missingkey=error").Funcs(funcs).Parse(string(data))
	if err != nil {
		return fmt.Errorf("parse prompt template %q: %w", t.name, err)
	}
	sum := sha256.Sum256(data)

	t.mu.Lock()
	t.tmpl = tmpl
	t.hash = hex.EncodeToString(sum[:])
	t.mu.Unlock()
	return nil
}
