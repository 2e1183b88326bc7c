// Package prompts holds the stage prompt templates used by the extraction
// pipeline. Defaults are embedded; a YAML file may override any stage.
package prompts

import (
	"bytes"
	"context"
	_ "embed"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"github.com/fsnotify/fsnotify"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Name identifies a stage prompt.
type Name string

// Stage prompt names.
const (
	ComponentDiscovery Name = "component_discovery"
	ElementDiscovery   Name = "element_discovery"
	Anchoring          Name = "anchoring"
	Detection          Name = "detection"
	Accuracy           Name = "accuracy"
)

// Names lists every stage prompt in pipeline order.
var Names = []Name{ComponentDiscovery, ElementDiscovery, Anchoring, Detection, Accuracy}

//go:embed defaults.yaml
var defaultsYAML []byte

// Source is the YAML shape of one stage prompt.
type Source struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// Rendered is a prompt ready to send.
type Rendered struct {
	System string
	User   string
}

type compiled struct {
	system *template.Template
	user   *template.Template
}

// Catalog renders stage prompts. It is safe for concurrent use and may be
// reloaded while in use.
type Catalog struct {
	mu        sync.RWMutex
	templates map[Name]compiled
	params    map[string]any
}

// Load builds a catalog from the embedded defaults, overlaid with path when
// it is non-empty. params are merged into every render (for example
// anchor_density).
func Load(path string, params map[string]any) (*Catalog, error) {
	c := &Catalog{params: params}
	if err := c.reload(path); err != nil {
		return nil, err
	}
	return c, nil
}

// Render executes the named prompt with data merged over the catalog params.
func (c *Catalog) Render(name Name, data map[string]any) (Rendered, error) {
	c.mu.RLock()
	t, ok := c.templates[name]
	c.mu.RUnlock()
	if !ok {
		return Rendered{}, eris.Errorf("prompts: unknown prompt %q", name)
	}

	merged := make(map[string]any, len(c.params)+len(data))
	for k, v := range c.params {
		merged[k] = v
	}
	for k, v := range data {
		merged[k] = v
	}

	system, err := execute(t.system, merged)
	if err != nil {
		return Rendered{}, eris.Wrapf(err, "prompts: render %s system", name)
	}
	user, err := execute(t.user, merged)
	if err != nil {
		return Rendered{}, eris.Wrapf(err, "prompts: render %s user", name)
	}
	return Rendered{System: system, User: user}, nil
}

func execute(t *template.Template, data map[string]any) (string, error) {
	if t == nil {
		return "", nil
	}
	var b bytes.Buffer
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}

func (c *Catalog) reload(path string) error {
	sources, err := parseSources(defaultsYAML)
	if err != nil {
		return eris.Wrap(err, "prompts: parse defaults")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return eris.Wrapf(err, "prompts: read %s", path)
		}
		// A truncated file is seen mid-write; keep the current templates.
		if len(bytes.TrimSpace(raw)) == 0 {
			return eris.Errorf("prompts: %s is empty", path)
		}
		overrides, err := parseSources(raw)
		if err != nil {
			return eris.Wrapf(err, "prompts: parse %s", path)
		}
		for name, src := range overrides {
			base := sources[name]
			if src.System != "" {
				base.System = src.System
			}
			if src.User != "" {
				base.User = src.User
			}
			sources[name] = base
		}
	}

	templates := make(map[Name]compiled, len(sources))
	for name, src := range sources {
		ct, err := compile(name, src)
		if err != nil {
			return err
		}
		templates[name] = ct
	}
	for _, name := range Names {
		if _, ok := templates[name]; !ok {
			return eris.Errorf("prompts: missing prompt %q", name)
		}
	}

	c.mu.Lock()
	c.templates = templates
	c.mu.Unlock()
	return nil
}

func parseSources(raw []byte) (map[Name]Source, error) {
	var sources map[Name]Source
	if err := yaml.Unmarshal(raw, &sources); err != nil {
		return nil, err
	}
	if sources == nil {
		sources = map[Name]Source{}
	}
	return sources, nil
}

func compile(name Name, src Source) (compiled, error) {
	var ct compiled
	var err error
	if src.System != "" {
		ct.system, err = template.New(string(name) + ".system").Option("missingkey=zero").Parse(src.System)
		if err != nil {
			return ct, eris.Wrapf(err, "prompts: parse %s system", name)
		}
	}
	if strings.TrimSpace(src.User) == "" {
		return ct, eris.Errorf("prompts: %s has no user prompt", name)
	}
	ct.user, err = template.New(string(name) + ".user").Option("missingkey=zero").Parse(src.User)
	if err != nil {
		return ct, eris.Wrapf(err, "prompts: parse %s user", name)
	}
	return ct, nil
}

// Watch reloads the catalog whenever path changes until ctx is done. A
// reload that fails keeps the previous templates.
func (c *Catalog) Watch(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return eris.Wrap(err, "prompts: create watcher")
	}
	// Editors replace files by rename, so watch the directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return eris.Wrapf(err, "prompts: watch %s", path)
	}

	target := filepath.Clean(path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(evt.Name) != target || evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := c.reload(path); err != nil {
					zap.L().Warn("prompts: reload failed", zap.String("path", path), zap.Error(err))
					continue
				}
				zap.L().Info("prompts: reloaded", zap.String("path", path))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				zap.L().Warn("prompts: watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
