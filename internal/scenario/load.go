package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format is a scenario file encoding.
type Format string

// Supported formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// extensions are tried in this order by Find.
var extensions = []string{".json", ".yaml", ".yml", ".toml"}

// ErrNotFound is returned by Find when no file matches.
var ErrNotFound = errors.New("scenario file not found")

// FormatFor picks the format from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("unsupported scenario file extension %q", filepath.Ext(path))
	}
}

// Find resolves a scenario name to a file. A name that is already a path to
// an existing file is returned as is; otherwise <dir>/<name><ext> is tried
// for each supported extension.
func Find(dir, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: no scenario name given", ErrNotFound)
	}

	if info, err := os.Stat(name); err == nil && !info.IsDir() {
		return name, nil
	}

	for _, ext := range extensions {
		candidate := filepath.Join(dir, name+ext)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w: %s in %s", ErrNotFound, name, dir)
}

// Load reads and validates a scenario file.
func Load(path string) ([]Entry, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}

	return Parse(data, format)
}

// Parse decodes and validates scenario data. A document is either a list
// of entries or a table with an "entries" list; TOML documents must use
// the table form.
func Parse(data []byte, format Format) ([]Entry, error) {
	var (
		raw any
		err error
	)

	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &raw)
	case FormatYAML:
		err = yaml.Unmarshal(data, &raw)
	case FormatTOML:
		var table map[string]any
		err = toml.Unmarshal(data, &table)
		raw = table
	default:
		return nil, fmt.Errorf("unsupported scenario format %q", format)
	}

	if err != nil {
		return nil, fmt.Errorf("decode %s scenario: %w", format, err)
	}

	items, err := entryList(raw)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(items))
	seen := make(map[string]int, len(items))

	for i, item := range items {
		entry, convErr := toEntry(item)
		if convErr != nil {
			return nil, fmt.Errorf("entry %d: %w", i+1, convErr)
		}

		if prev, dup := seen[entry.ID]; dup {
			return nil, fmt.Errorf("entry %d: duplicate id %q (first used by entry %d)", i+1, entry.ID, prev)
		}

		seen[entry.ID] = i + 1
		entries = append(entries, entry)
	}

	return entries, nil
}

func entryList(raw any) ([]any, error) {
	switch v := raw.(type) {
	case []any:
		return v, nil
	case map[string]any:
		if list, ok := v["entries"].([]any); ok {
			return list, nil
		}

		// go-toml decodes arrays of tables as []map[string]any.
		if list, ok := v["entries"].([]map[string]any); ok {
			out := make([]any, len(list))
			for i, m := range list {
				out[i] = m
			}

			return out, nil
		}

		return nil, errors.New(`scenario document has no "entries" list`)
	case nil:
		return nil, errors.New("scenario document is empty")
	default:
		return nil, fmt.Errorf("scenario document must be a list, got %T", raw)
	}
}

func toEntry(item any) (Entry, error) {
	fields, ok := item.(map[string]any)
	if !ok {
		return Entry{}, fmt.Errorf("must be a table, got %T", item)
	}

	var entry Entry

	id, err := scalarString(fields["id"])
	if err != nil {
		return Entry{}, fmt.Errorf("id: %w", err)
	}

	if id == "" {
		return Entry{}, errors.New("id is required")
	}

	entry.ID = id

	if entry.Name, err = scalarString(fields["name"]); err != nil {
		return Entry{}, fmt.Errorf("name: %w", err)
	}

	typ, err := scalarString(fields["type"])
	if err != nil {
		return Entry{}, fmt.Errorf("type: %w", err)
	}

	entry.Type = Type(strings.ToLower(typ))
	if !entry.Type.valid() {
		return Entry{}, fmt.Errorf("unknown type %q", typ)
	}

	if rawData, present := fields["data"]; present && rawData != nil {
		dataFields, isMap := rawData.(map[string]any)
		if !isMap {
			return Entry{}, fmt.Errorf("data must be a table, got %T", rawData)
		}

		if entry.Data, err = toData(dataFields); err != nil {
			return Entry{}, fmt.Errorf("data: %w", err)
		}
	}

	return entry, nil
}

func toData(fields map[string]any) (Data, error) {
	var (
		d   Data
		err error
	)

	strs := []struct {
		key string
		dst *string
	}{
		{"installFolder", &d.InstallFolder},
		{"targetList", &d.TargetList},
		{"idfList", &d.IDFList},
		{"toolsMirror", &d.ToolsMirror},
		{"idfMirror", &d.IDFMirror},
	}

	for _, s := range strs {
		if *s.dst, err = scalarString(fields[s.key]); err != nil {
			return Data{}, fmt.Errorf("%s: %w", s.key, err)
		}
	}

	if d.Recursive, err = flagString(fields["recursive"]); err != nil {
		return Data{}, fmt.Errorf("recursive: %w", err)
	}

	if d.NonInteractive, err = flagString(fields["nonInteractive"]); err != nil {
		return Data{}, fmt.Errorf("nonInteractive: %w", err)
	}

	if build, present := fields["build"]; present {
		value, flagErr := flagString(build)
		if flagErr != nil {
			return Data{}, fmt.Errorf("build: %w", flagErr)
		}

		d.Build = value == "true"
	}

	if rawTimeout, present := fields["timeout"]; present {
		text, strErr := scalarString(rawTimeout)
		if strErr != nil {
			return Data{}, fmt.Errorf("timeout: %w", strErr)
		}

		if d.Timeout, err = time.ParseDuration(text); err != nil {
			return Data{}, fmt.Errorf("timeout: %w", err)
		}
	}

	if d.ToolsMirror != "" {
		if _, err := resolveMirror(ToolsMirrors, "tools", d.ToolsMirror); err != nil {
			return Data{}, err
		}
	}

	if d.IDFMirror != "" {
		if _, err := resolveMirror(IDFMirrors, "IDF", d.IDFMirror); err != nil {
			return Data{}, err
		}
	}

	return d, nil
}

// scalarString accepts strings and numbers; ids are often written as numbers.
func scalarString(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case uint64:
		return strconv.FormatUint(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("must be a string or number, got %T", v)
	}
}

// flagString normalizes a boolean written as a bool or a string. Unset stays "".
func flagString(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case bool:
		return strconv.FormatBool(val), nil
	case string:
		if strings.TrimSpace(val) == "" {
			return "", nil
		}

		parsed, err := strconv.ParseBool(strings.TrimSpace(val))
		if err != nil {
			return "", fmt.Errorf("must be true or false, got %q", val)
		}

		return strconv.FormatBool(parsed), nil
	default:
		return "", fmt.Errorf("must be true or false, got %T", v)
	}
}
