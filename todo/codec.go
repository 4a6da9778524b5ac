package todo

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"

	api "github.com/omalloc/ember/api/todo"
)

var (
	_ api.Codec = JSONCodec{}
	_ api.Codec = YAMLCodec{}
	_ api.Codec = CBORCodec{}
)

// JSONCodec stores the collection as a JSON array of records.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(tasks []api.Task) ([]byte, error) {
	return json.Marshal(nonNil(tasks))
}

func (JSONCodec) Unmarshal(data []byte) ([]api.Task, error) {
	var tasks []api.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// YAMLCodec stores the collection as a YAML sequence of mappings.
type YAMLCodec struct{}

func (YAMLCodec) Name() string { return "yaml" }

func (YAMLCodec) Marshal(tasks []api.Task) ([]byte, error) {
	return yaml.Marshal(nonNil(tasks))
}

func (YAMLCodec) Unmarshal(data []byte) ([]api.Task, error) {
	var tasks []api.Task
	if err := yaml.Unmarshal(data, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// CBORCodec stores the collection as a CBOR array of maps keyed like the JSON form.
type CBORCodec struct{}

func (CBORCodec) Name() string { return "cbor" }

func (CBORCodec) Marshal(tasks []api.Task) ([]byte, error) {
	return cbor.Marshal(nonNil(tasks))
}

func (CBORCodec) Unmarshal(data []byte) ([]api.Task, error) {
	var tasks []api.Task
	if err := cbor.Unmarshal(data, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// CodecByName resolves a codec from its configured name. Empty means json.
func CodecByName(name string) (api.Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return JSONCodec{}, nil
	case "yaml", "yml":
		return YAMLCodec{}, nil
	case "cbor":
		return CBORCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

func nonNil(tasks []api.Task) []api.Task {
	if tasks == nil {
		return []api.Task{}
	}
	return tasks
}

// wellFormed rejects decoded collections that break the collection invariants.
func wellFormed(tasks []api.Task) bool {
	seen := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		if t.ID == "" || strings.TrimSpace(t.Text) == "" {
			return false
		}
		if _, dup := seen[t.ID]; dup {
			return false
		}
		seen[t.ID] = struct{}{}
	}
	return true
}
