// Package loader reads authored workflow definitions from a directory
// of YAML files. One file per workflow, named <workflow>.yaml.
package loader

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/Zeeeepa/gobby/pkg/schema"
)

// FileLoader resolves workflow definitions from a directory. Parsed
// definitions are cached by file modification time.
type FileLoader struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]cachedDefinition
}

type cachedDefinition struct {
	def     *schema.WorkflowDefinition
	modTime int64
}

// NewFileLoader creates a FileLoader rooted at dir.
func NewFileLoader(dir string, logger *slog.Logger) *FileLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileLoader{
		dir:    dir,
		logger: logger,
		cache:  make(map[string]cachedDefinition),
	}
}

// LoadWorkflow loads the named definition. Returns a NOT_FOUND error
// when no file exists for the name.
func (l *FileLoader) LoadWorkflow(name string) (*schema.WorkflowDefinition, error) {
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(l.dir, name+ext)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		return l.loadFile(path, name, info.ModTime().UnixNano())
	}
	return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not found in %s", name, l.dir)
}

// DiscoverLifecycleWorkflows returns every lifecycle-typed definition
// in the directory, sorted by name. Unparseable files are logged and
// skipped so one bad definition cannot hide the rest.
func (l *FileLoader) DiscoverLifecycleWorkflows() ([]*schema.WorkflowDefinition, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, schema.NewErrorf(schema.ErrCodeStore, "read workflow directory %s: %s", l.dir, err.Error()).WithCause(err)
	}

	var defs []*schema.WorkflowDefinition
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ext)

		def, err := l.LoadWorkflow(name)
		if err != nil {
			l.logger.Warn("skipping unparseable workflow definition",
				slog.String("file", entry.Name()),
				slog.String("error", err.Error()))
			continue
		}
		if def.EffectiveType() == schema.WorkflowTypeLifecycle {
			defs = append(defs, def)
		}
	}

	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs, nil
}

// DiscoverLifecycleWorkflowsFor filters discovery by the definitions'
// optional sources restriction.
func (l *FileLoader) DiscoverLifecycleWorkflowsFor(source string) ([]*schema.WorkflowDefinition, error) {
	all, err := l.DiscoverLifecycleWorkflows()
	if err != nil {
		return nil, err
	}
	filtered := all[:0]
	for _, def := range all {
		if def.AppliesTo(source) {
			filtered = append(filtered, def)
		}
	}
	return filtered, nil
}

func (l *FileLoader) loadFile(path, name string, modTime int64) (*schema.WorkflowDefinition, error) {
	l.mu.Lock()
	if cached, ok := l.cache[path]; ok && cached.modTime == modTime {
		l.mu.Unlock()
		return cached.def, nil
	}
	l.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "read workflow file %s: %s", path, err.Error()).WithCause(err)
	}

	var def schema.WorkflowDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"parse workflow file %s: %s", path, err.Error()).WithCause(err)
	}
	if def.Name == "" {
		def.Name = name
	}

	l.mu.Lock()
	l.cache[path] = cachedDefinition{def: &def, modTime: modTime}
	l.mu.Unlock()

	return &def, nil
}
