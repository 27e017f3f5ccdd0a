package npm

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PackageJSONRaw defines the fields of a package.json that take part in module resolution
type PackageJSONRaw struct {
	Name       string          `json:"name"`
	Version    string          `json:"version"`
	Type       string          `json:"type"`
	Main       json.RawMessage `json:"main"`
	Module     json.RawMessage `json:"module"`
	ES2015     json.RawMessage `json:"es2015"`
	JsNextMain json.RawMessage `json:"jsnext:main"`
	Browser    json.RawMessage `json:"browser"`
	Types      json.RawMessage `json:"types"`
	Typings    json.RawMessage `json:"typings"`
	TsConfig   json.RawMessage `json:"tsconfig"`
	Exports    json.RawMessage `json:"exports"`
	Imports    json.RawMessage `json:"imports"`
}

// PackageJSON defines the normalized package.json of a package
type PackageJSON struct {
	Name    string
	Version string
	Type    string
	Main    string
	Module  string
	Types   string
	// TsConfig is the "tsconfig" field used when a tsconfig extends the package
	TsConfig string
	// Browser maps a path or module name to its browser replacement, an empty
	// string means the module is replaced with an empty module (`false`).
	// The package entry of a string "browser" field is keyed as ".".
	Browser map[string]string
	// Exports is nil when the field is absent or null, otherwise one of
	// string, []any or JSONObject.
	Exports any
	Imports JSONObject
}

// ToPackageJSON converts PackageJSONRaw to PackageJSON
func (a *PackageJSONRaw) ToPackageJSON() (*PackageJSON, error) {
	exports, err := decodeOrdered(a.Exports)
	if err != nil {
		return nil, fmt.Errorf("invalid exports field: %w", err)
	}
	imports, err := decodeOrdered(a.Imports)
	if err != nil {
		return nil, fmt.Errorf("invalid imports field: %w", err)
	}

	p := &PackageJSON{
		Name:     a.Name,
		Version:  a.Version,
		Type:     a.Type,
		Main:     fieldString(a.Main),
		Module:   fieldString(a.Module),
		Types:    fieldString(a.Types),
		TsConfig: fieldString(a.TsConfig),
		Browser:  browserMap(a.Browser),
		Exports:  exports,
	}
	if obj, ok := imports.(JSONObject); ok {
		p.Imports = obj
	}
	if p.Types == "" {
		p.Types = fieldString(a.Typings)
	}

	// normalize package module field
	if p.Module == "" {
		if es2015 := fieldString(a.ES2015); es2015 != "" {
			p.Module = es2015
		} else if jsNextMain := fieldString(a.JsNextMain); jsNextMain != "" {
			p.Module = jsNextMain
		}
	}

	return p, nil
}

// ParsePackageJSON parses the content of a package.json file.
// Syntax errors are returned as *json.SyntaxError or *json.UnmarshalTypeError.
func ParsePackageJSON(data []byte) (*PackageJSON, error) {
	var raw PackageJSONRaw
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw.ToPackageJSON()
}

// fieldString returns a string field, or the "." entry of an object field.
func fieldString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var m map[string]any
	if json.Unmarshal(raw, &m) == nil {
		if s, ok := m["."].(string); ok {
			return s
		}
	}
	return ""
}

func browserMap(raw json.RawMessage) map[string]string {
	browser := map[string]string{}
	if len(raw) == 0 {
		return browser
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		if s != "" {
			browser["."] = s
		}
		return browser
	}
	var m map[string]any
	if json.Unmarshal(raw, &m) == nil {
		for k, v := range m {
			switch v := v.(type) {
			case string:
				browser[k] = v
			case bool:
				if !v {
					browser[k] = ""
				}
			}
		}
	}
	return browser
}

// JSONObject represents a readonly JSON object with ordered keys
type JSONObject struct {
	keys   []string
	values map[string]any
}

// Len returns the length of the JSON object
func (obj *JSONObject) Len() int {
	return len(obj.keys)
}

// Keys returns the keys of the JSON object in declaration order
func (obj *JSONObject) Keys() []string {
	return obj.keys
}

// Get returns the value of the key in the JSON object
func (obj *JSONObject) Get(key string) (any, bool) {
	v, ok := obj.values[key]
	return v, ok
}

// decodeOrdered decodes a raw JSON value, objects become JSONObject so the
// key order survives. It returns nil for an absent or null value.
func decodeOrdered(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	// don't convert number to float64
	dec.UseNumber()
	return decodeValue(dec)
}

func decodeValue(dec *json.Decoder) (any, error) {
	t, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := t.(json.Delim)
	if !ok {
		return t, nil
	}
	switch delim {
	case '{':
		obj := JSONObject{values: map[string]any{}}
		for dec.More() {
			t, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := t.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected object key %v", t)
			}
			value, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			// a duplicated key keeps its first position but takes the last value
			if _, exists := obj.values[key]; !exists {
				obj.keys = append(obj.keys, key)
			}
			obj.values[key] = value
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return obj, nil
	case '[':
		arr := []any{}
		for dec.More() {
			value, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, value)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	}
	return nil, fmt.Errorf("unexpected delimiter %q", delim)
}
