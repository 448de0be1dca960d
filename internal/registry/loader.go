package registry

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ShayCichocki/conductor/pkg/models"
	"go.yaml.in/yaml/v3"
)

// documentExts are the file extensions recognized as agent documents.
var documentExts = map[string]bool{
	".yaml": true,
	".yml":  true,
	".json": true,
}

// IsAgentDocument reports whether path has a recognized agent document extension.
func IsAgentDocument(path string) bool {
	return documentExts[strings.ToLower(filepath.Ext(path))]
}

// Load reads every agent document in dir, sorted by filename, and builds a snapshot.
// Any unreadable, unparsable, or invalid document fails the whole load.
func Load(dir string) (*Snapshot, error) {
	files, err := listDocuments(dir)
	if err != nil {
		return nil, err
	}

	agents := make([]*models.AgentDefinition, 0, len(files))
	seen := make(map[string]string, len(files))
	for _, f := range files {
		def, err := loadDocument(f.path)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[def.Name]; ok {
			return nil, loadErr(f.path, fmt.Sprintf("duplicate agent name %q (first declared in %s)", def.Name, prev), nil)
		}
		seen[def.Name] = f.path
		agents = append(agents, def)
	}

	return newSnapshot(dir, agents), nil
}

type documentFile struct {
	path  string
	name  string
	size  int64
	mtime int64
}

// listDocuments returns the recognized documents in dir sorted by filename.
func listDocuments(dir string) ([]documentFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, loadErr(dir, "read agents dir", err)
	}

	files := make([]documentFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !IsAgentDocument(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, loadErr(filepath.Join(dir, e.Name()), "stat document", err)
		}
		files = append(files, documentFile{
			path:  filepath.Join(dir, e.Name()),
			name:  e.Name(),
			size:  info.Size(),
			mtime: info.ModTime().UnixNano(),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].name < files[j].name })
	return files, nil
}

// fingerprint summarizes the directory listing so unchanged directories are not reloaded.
func fingerprint(dir string) (string, error) {
	files, err := listDocuments(dir)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, f := range files {
		fmt.Fprintf(&b, "%s:%d:%d;", f.name, f.size, f.mtime)
	}
	return b.String(), nil
}

func loadDocument(path string) (*models.AgentDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, loadErr(path, "read document", err)
	}

	// JSON is a subset of YAML, so one decoder covers both formats.
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, loadErr(path, "parse document", err)
	}
	if doc == nil {
		return nil, loadErr(path, "document is empty", nil)
	}

	def, reason := parseDefinition(doc)
	if reason != "" {
		return nil, loadErr(path, reason, nil)
	}
	def.SourcePath = path
	return def, nil
}

// parseDefinition validates a decoded document. A non-empty reason means invalid.
func parseDefinition(doc map[string]any) (*models.AgentDefinition, string) {
	rawName, ok := doc["name"].(string)
	name := strings.TrimSpace(rawName)
	if !ok || name == "" {
		return nil, "missing required field: name"
	}

	model, ok := asMapping(doc["model"])
	if !ok {
		return nil, "missing required field: model"
	}

	triggers, ok := asMapping(doc["triggers"])
	if !ok {
		return nil, "missing required field: triggers"
	}

	intents, err := stringList(triggers["intents"])
	if err != nil {
		return nil, "triggers.intents: " + err.Error()
	}
	for i := range intents {
		intents[i] = strings.ToLower(intents[i])
	}
	keywords, err := stringList(triggers["keywords"])
	if err != nil {
		return nil, "triggers.keywords: " + err.Error()
	}

	def := &models.AgentDefinition{
		Name:        name,
		Description: strings.TrimSpace(optionalString(doc["description"])),
		Label:       strings.TrimSpace(optionalString(doc["label"])),
		Model:       model,
		Triggers: models.AgentTriggers{
			Intents:  intents,
			Keywords: keywords,
		},
	}
	if def.Label == "" {
		def.Label = def.Name
	}

	if raw, present := doc["limits"]; present && raw != nil {
		limits, ok := asMapping(raw)
		if !ok {
			return nil, "limits must be a mapping"
		}
		if def.Limits.TimeoutSeconds, err = optionalInt(limits["timeout_seconds"]); err != nil {
			return nil, "limits.timeout_seconds: " + err.Error()
		}
		if def.Limits.MockDelayMs, err = optionalInt(limits["mock_delay_ms"]); err != nil {
			return nil, "limits.mock_delay_ms: " + err.Error()
		}
	}

	return def, ""
}

func asMapping(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func optionalString(v any) string {
	s, _ := v.(string)
	return s
}

// stringList accepts a list or a comma-separated string and returns trimmed non-empty entries.
func stringList(v any) ([]string, error) {
	var raw []string
	switch t := v.(type) {
	case nil:
		return []string{}, nil
	case string:
		raw = strings.Split(t, ",")
	case []any:
		for _, item := range t {
			switch s := item.(type) {
			case string:
				raw = append(raw, s)
			case nil:
			default:
				raw = append(raw, fmt.Sprint(s))
			}
		}
	default:
		return nil, fmt.Errorf("expected list or comma-separated string, got %T", v)
	}

	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

func optionalInt(v any) (int, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int:
		if n < 0 {
			return 0, fmt.Errorf("must not be negative")
		}
		return n, nil
	case float64:
		if n < 0 || n != math.Trunc(n) {
			return 0, fmt.Errorf("must be a non-negative integer")
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}
