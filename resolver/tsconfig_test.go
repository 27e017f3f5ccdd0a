package resolver

import (
	"errors"
	"testing"
)

func TestResolveTsConfigExtendsChain(t *testing.T) {
	fsys := newFS(map[string]string{
		"/proj/tsconfig.json": `{
			// comments and trailing commas are allowed
			"extends": "./base",
			"compilerOptions": {"strict": true,},
		}`,
		"/proj/base.json":           `{"compilerOptions": {"paths": {"@app/*": ["src/*"], "config": ["src/config/index.ts"]}}}`,
		"/proj/src/entry.ts":        "",
		"/proj/src/foo.ts":          "",
		"/proj/src/config/index.ts": "",
	})
	r := New(fsys, Options{TsConfig: true})

	inv := NewInvalidations()
	m, err := r.Resolve("@app/foo", "/proj/src/entry.ts", ESM, inv)
	if err != nil {
		t.Fatal(err)
	}
	if m.Path != "/proj/src/foo.ts" {
		t.Fatalf("got %q", m.Path)
	}
	changed := changePaths(inv)
	for _, p := range []string{"/proj/tsconfig.json", "/proj/base.json"} {
		if !contains(changed, p) {
			t.Errorf("%s should invalidate on change, got %v", p, changed)
		}
	}
	if !contains(createPaths(inv), "/proj/base") {
		t.Errorf("the probed extends path should invalidate on create")
	}
	// editors save by renaming a temporary file over the original
	if !inv.InvalidatedBy(FileEvent{Type: EventCreate, Path: "/proj/base.json"}) {
		t.Errorf("replacing the extended tsconfig should invalidate the result")
	}

	// cached chains replay their invalidations
	inv2 := NewInvalidations()
	if _, err := r.Resolve("@app/foo", "/proj/src/entry.ts", ESM, inv2); err != nil {
		t.Fatal(err)
	}
	if !contains(changePaths(inv2), "/proj/base.json") {
		t.Fatal("a cached tsconfig chain must replay its invalidations")
	}

	if got := resolvePath(t, r, "config", "/proj/src/entry.ts", ESM); got != "/proj/src/config/index.ts" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveTsConfigBaseURL(t *testing.T) {
	fsys := newFS(map[string]string{
		"/proj/tsconfig.json":               `{"compilerOptions": {"baseUrl": "./src", "paths": {"~/*": ["./*", "../generated/*"]}}}`,
		"/proj/src/entry.ts":                "",
		"/proj/src/utils/date.ts":           "",
		"/proj/generated/api.ts":            "",
		"/proj/node_modules/react/index.js": "",
		"/proj/node_modules/lib/index.js":   "",
	})
	r := New(fsys, Options{TsConfig: true})

	tests := []struct {
		spec string
		want string
	}{
		{"~/utils/date", "/proj/src/utils/date.ts"},
		{"~/api", "/proj/generated/api.ts"},
		{"utils/date", "/proj/src/utils/date.ts"},
		{"react", "/proj/node_modules/react/index.js"},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			if got := resolvePath(t, r, tt.spec, "/proj/src/entry.ts", ESM); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}

	// files inside node_modules never use the project tsconfig
	if _, err := r.Resolve("utils/date", "/proj/node_modules/lib/index.js", ESM, nil); err == nil {
		t.Fatal("expected an error")
	}
	// disabled
	r = New(fsys, Options{})
	if _, err := r.Resolve("~/utils/date", "/proj/src/entry.ts", ESM, nil); err == nil {
		t.Fatal("expected an error")
	}
}

func TestResolveTsConfigInvalidPackageAlias(t *testing.T) {
	fsys := newFS(map[string]string{
		"/proj/tsconfig.json":             `{"compilerOptions": {"paths": {"@/*": ["./src/*"]}}}`,
		"/proj/src/entry.ts":              "",
		"/proj/src/components/button.tsx": "",
	})
	r := New(fsys, Options{TsConfig: true})
	if got := resolvePath(t, r, "@/components/button", "/proj/src/entry.ts", ESM); got != "/proj/src/components/button.tsx" {
		t.Fatalf("got %q", got)
	}
	_, err := r.Resolve("@/missing", "/proj/src/entry.ts", ESM, nil)
	var ie *InvalidSpecifierError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InvalidSpecifierError, got %v", err)
	}
}

func TestResolveTsConfigExtendsPackage(t *testing.T) {
	fsys := newFS(map[string]string{
		"/proj/tsconfig.json": `{"extends": ["@tsconfig/base", "shared/strict"], "compilerOptions": {"baseUrl": "."}}`,
		"/proj/src/entry.ts":  "",
		"/proj/lib/x.ts":      "",
		"/proj/node_modules/@tsconfig/base/package.json": `{"name": "@tsconfig/base", "tsconfig": "./config.json"}`,
		"/proj/node_modules/@tsconfig/base/config.json":  `{"compilerOptions": {"paths": {"#lib/*": ["lib/*"]}}}`,
		"/proj/node_modules/shared/strict.json":          `{"compilerOptions": {"baseUrl": "./ignored"}}`,
	})
	r := New(fsys, Options{TsConfig: true})

	inv := NewInvalidations()
	ts, err := r.newResolution(ESM, inv).tsConfigFor(r.Cache().Intern("/proj/src/entry.ts"))
	if err != nil {
		t.Fatal(err)
	}
	if ts.BaseURL != "/proj" {
		t.Fatalf("the child baseUrl wins, got %q", ts.BaseURL)
	}
	if ts.PathsDir != "/proj/node_modules/@tsconfig/base" || len(ts.Paths["#lib/*"]) != 1 {
		t.Fatalf("unexpected paths %+v in %s", ts.Paths, ts.PathsDir)
	}
	if got := ts.candidates("#lib/x")[0]; got != "/proj/lib/x" {
		t.Fatalf("paths resolve against baseUrl, got %q", got)
	}
}

func TestResolveTsConfigExtendsNotFound(t *testing.T) {
	fsys := newFS(map[string]string{
		"/proj/tsconfig.json": `{"extends": "./missing.json"}`,
		"/proj/src/entry.ts":  "",
	})
	r := New(fsys, Options{TsConfig: true})
	_, err := r.Resolve("lib", "/proj/src/entry.ts", ESM, nil)
	var te *TsConfigExtendsNotFoundError
	if !errors.As(err, &te) || te.TsConfig != "/proj/tsconfig.json" {
		t.Fatalf("expected TsConfigExtendsNotFoundError, got %v", err)
	}
	var fe *FileNotFoundError
	if !errors.As(te.Err, &fe) || fe.Relative != "./missing.json" {
		t.Fatalf("the cause should be kept, got %v", te.Err)
	}

	fsys = newFS(map[string]string{
		"/proj/tsconfig.json": `{"extends": "@org/tsconfig"}`,
		"/proj/src/entry.ts":  "",
	})
	r = New(fsys, Options{TsConfig: true})
	_, err = r.Resolve("lib", "/proj/src/entry.ts", ESM, nil)
	var me *ModuleNotFoundError
	if !errors.As(err, &te) || !errors.As(err, &me) || me.Module != "@org/tsconfig" {
		t.Fatalf("expected TsConfigExtendsNotFoundError wrapping ModuleNotFoundError, got %v", err)
	}
}

func TestResolveTsConfigExtendsCircular(t *testing.T) {
	fsys := newFS(map[string]string{
		"/proj/tsconfig.json": `{"extends": "./a.json"}`,
		"/proj/a.json":        `{"extends": "./b.json"}`,
		"/proj/b.json":        `{"extends": "./a.json"}`,
		"/proj/src/entry.ts":  "",
	})
	r := New(fsys, Options{TsConfig: true})
	_, err := r.Resolve("lib", "/proj/src/entry.ts", ESM, nil)
	var ce *TsConfigExtendsCircularError
	if !errors.As(err, &ce) {
		t.Fatalf("expected TsConfigExtendsCircularError, got %v", err)
	}
	if ce.TsConfig != "/proj/b.json" || len(ce.Chain) != 4 || ce.Chain[3] != "/proj/a.json" {
		t.Fatalf("unexpected chain %v", ce.Chain)
	}
}

func TestResolveTsConfigJSONError(t *testing.T) {
	fsys := newFS(map[string]string{
		"/proj/tsconfig.json": "{\n  \"compilerOptions\": {\n    \"paths\": 1\n  }\n}",
		"/proj/src/entry.ts":  "",
	})
	r := New(fsys, Options{TsConfig: true})
	_, err := r.Resolve("lib", "/proj/src/entry.ts", ESM, nil)
	var je *JSONError
	if !errors.As(err, &je) || je.Path != "/proj/tsconfig.json" || je.Line != 3 {
		t.Fatalf("expected JSONError on line 3, got %v", err)
	}
}

func TestTsConfigMatchPattern(t *testing.T) {
	ts := &TsConfig{
		PathsDir: "/proj",
		Paths: map[string][]string{
			"*":            {"types/*"},
			"@app/*":       {"src/*"},
			"@app/utils/*": {"src/shared/utils/*"},
			"exact":        {"src/exact.ts"},
		},
	}
	tests := []struct {
		spec string
		want string
	}{
		{"@app/utils/date", "/proj/src/shared/utils/date"},
		{"@app/main", "/proj/src/main"},
		{"exact", "/proj/src/exact.ts"},
		{"lodash", "/proj/types/lodash"},
	}
	for _, tt := range tests {
		if got := ts.candidates(tt.spec); len(got) == 0 || got[0] != tt.want {
			t.Errorf("candidates(%q) = %v, want %q first", tt.spec, got, tt.want)
		}
	}
}
