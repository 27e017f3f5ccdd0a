package npm

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestValidatePackageName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"react", true},
		{"@parcel/core", true},
		{"lodash.merge", true},
		{"", false},
		{"@scope", false},
		{"@/foo", false},
		{"@scope/", false},
		{".hidden", false},
		{"_private", false},
		{"foo:bar", false},
		{"foo bar", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidatePackageName(tt.name); got != tt.want {
				t.Errorf("ValidatePackageName(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestSplitPackageName(t *testing.T) {
	tests := []struct {
		specifier   string
		wantName    string
		wantSubpath string
	}{
		{"axios", "axios", ""},
		{"axios/lib/core", "axios", "lib/core"},
		{"@parcel/core", "@parcel/core", ""},
		{"@parcel/core/lib/index.js", "@parcel/core", "lib/index.js"},
		{"@scope", "@scope", ""},
	}
	for _, tt := range tests {
		t.Run(tt.specifier, func(t *testing.T) {
			name, subpath := SplitPackageName(tt.specifier)
			if name != tt.wantName || subpath != tt.wantSubpath {
				t.Errorf("SplitPackageName(%q) = (%q, %q), want (%q, %q)", tt.specifier, name, subpath, tt.wantName, tt.wantSubpath)
			}
		})
	}
}

func TestSplitPackageVersion(t *testing.T) {
	name, version := SplitPackageVersion("@babel/parser@7.0.0")
	if name != "@babel/parser" || version != "7.0.0" {
		t.Fatalf("got (%q, %q)", name, version)
	}
	name, version = SplitPackageVersion("react")
	if name != "react" || version != "" {
		t.Fatalf("got (%q, %q)", name, version)
	}
}

func TestParsePackageJSON(t *testing.T) {
	p, err := ParsePackageJSON([]byte(`{
		"name": "pkg",
		"version": "1.2.3",
		"type": "module",
		"main": "./index.cjs",
		"jsnext:main": "./index.next.js",
		"browser": {"./node.js": "./browser.js", "fs": false},
		"exports": {
			"./b": "./b.js",
			"./a": {"import": "./a.mjs", "require": "./a.cjs"},
			"./*": ["./lib/*.js", null]
		},
		"imports": {"#dep": "dep"}
	}`))
	if err != nil {
		t.Fatal(err)
	}
	if p.Main != "./index.cjs" {
		t.Fatalf("main should be kept for module packages, got %q", p.Main)
	}
	if p.Module != "./index.next.js" {
		t.Fatalf("module should fall back to jsnext:main, got %q", p.Module)
	}
	if !reflect.DeepEqual(p.Browser, map[string]string{"./node.js": "./browser.js", "fs": ""}) {
		t.Fatalf("unexpected browser map %v", p.Browser)
	}
	exports, ok := p.Exports.(JSONObject)
	if !ok {
		t.Fatalf("exports should be an object, got %T", p.Exports)
	}
	if !reflect.DeepEqual(exports.Keys(), []string{"./b", "./a", "./*"}) {
		t.Fatalf("exports keys should keep declaration order, got %v", exports.Keys())
	}
	a, _ := exports.Get("./a")
	if obj, ok := a.(JSONObject); !ok || !reflect.DeepEqual(obj.Keys(), []string{"import", "require"}) {
		t.Fatalf("nested conditions should keep order, got %v", a)
	}
	star, _ := exports.Get("./*")
	if arr, ok := star.([]any); !ok || len(arr) != 2 || arr[1] != nil {
		t.Fatalf("array targets should be kept, got %v", star)
	}
	if v, ok := p.Imports.Get("#dep"); !ok || v != "dep" {
		t.Fatalf("imports should be parsed, got %v", v)
	}
}

func TestParsePackageJSONExportsForms(t *testing.T) {
	p, err := ParsePackageJSON([]byte(`{"exports": "./index.js"}`))
	if err != nil || p.Exports != "./index.js" {
		t.Fatalf("string exports: %v, %v", p.Exports, err)
	}
	p, err = ParsePackageJSON([]byte(`{"exports": null}`))
	if err != nil || p.Exports != nil {
		t.Fatalf("null exports: %v, %v", p.Exports, err)
	}
	p, err = ParsePackageJSON([]byte(`{"browser": "./browser.js"}`))
	if err != nil || p.Browser["."] != "./browser.js" {
		t.Fatalf("string browser: %v, %v", p.Browser, err)
	}
}

func TestParsePackageJSONSyntaxError(t *testing.T) {
	_, err := ParsePackageJSON([]byte("{\n  \"name\": \"pkg\",\n}"))
	var syntaxErr *json.SyntaxError
	if !errors.As(err, &syntaxErr) {
		t.Fatalf("expected a syntax error, got %v", err)
	}
}
