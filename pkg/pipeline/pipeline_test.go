package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/shelf/pkg/cache"
	"github.com/matzehuels/shelf/pkg/declare"
	errs "github.com/matzehuels/shelf/pkg/errors"
	"github.com/matzehuels/shelf/pkg/observability"
	"github.com/matzehuels/shelf/pkg/resolve"
)

type fakeInstaller struct {
	versions map[string]string // "name@spec" -> installed version
	calls    int
}

func (f *fakeInstaller) Install(_ context.Context, staging, name, spec string) (string, error) {
	f.calls++
	v := f.versions[name+"@"+spec]
	if v == "" {
		return "", errs.New(errs.ErrCodeInstall, "no version of %s matches %s", name, spec)
	}
	dir := filepath.Join(staging, "node_modules", filepath.FromSlash(name))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	body := fmt.Sprintf(`{"name":%q,"version":%q}`, name, v)
	return dir, os.WriteFile(filepath.Join(dir, "package.json"), []byte(body), 0o644)
}

func (f *fakeInstaller) InstalledVersion(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return "", err
	}
	var pkg struct{ Version string }
	if err := json.Unmarshal(data, &pkg); err != nil {
		return "", err
	}
	return pkg.Version, nil
}

type fakeRegistry map[string]string // name -> latest, the only published version

func (f fakeRegistry) LatestVersion(ctx context.Context, name string) (string, error) {
	return f.DistTag(ctx, name, "latest")
}

func (f fakeRegistry) DistTag(_ context.Context, name, tag string) (string, error) {
	if v, ok := f[name]; ok && tag == "latest" {
		return v, nil
	}
	return "", errs.New(errs.ErrCodePackageNotFound, "npm package %s", name)
}

func (f fakeRegistry) Versions(_ context.Context, name string, _ bool) ([]string, error) {
	if v, ok := f[name]; ok {
		return []string{v}, nil
	}
	return nil, errs.New(errs.ErrCodePackageNotFound, "npm package %s", name)
}

func newRunner(t *testing.T) (*Runner, *fakeInstaller, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "cache")
	inst := &fakeInstaller{versions: map[string]string{
		"foo@1.4.2": "1.4.2",
		"bar@2.0.0": "2.0.0",
	}}
	reg := fakeRegistry{"foo": "1.4.2", "bar": "2.0.0"}
	res := resolve.New(cache.New(root), inst, reg)
	return NewRunner(res, log.New(io.Discard)), inst, root
}

const script = `#!/usr/bin/env node
const foo = include("foo", "^1.0.0");
const bar = include("bar");
console.log(foo, bar);
`

func TestPrepare(t *testing.T) {
	r, inst, root := newRunner(t)
	ctx := context.Background()

	result, err := r.Prepare(ctx, Options{Script: "hello.js", Source: []byte(script)})
	if err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}

	if len(result.Sites) != 2 {
		t.Errorf("Sites = %d, want 2", len(result.Sites))
	}
	if result.Stats.Installs != 2 || result.Stats.CacheHits != 0 {
		t.Errorf("Stats = %+v, want 2 installs", result.Stats)
	}

	tests := []struct{ name, constraint, want string }{
		{"foo", "^1.0.0", filepath.Join(root, "foo", "1.4.2")},
		{"bar", "", filepath.Join(root, "bar", "2.0.0")},
	}
	for _, tt := range tests {
		got, err := result.Table.Lookup(tt.name, tt.constraint)
		if err != nil {
			t.Errorf("Lookup(%q, %q) error: %v", tt.name, tt.constraint, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Lookup(%q, %q) = %q, want %q", tt.name, tt.constraint, got, tt.want)
		}
	}

	// Undeclared keys stay closed even though foo is installed.
	if _, err := result.Table.Lookup("foo", "1.4.2"); !errs.Is(err, errs.ErrCodeNotDeclared) {
		t.Errorf("Lookup(undeclared) error = %v, want NOT_DECLARED", err)
	}

	// A second run is served entirely from the cache.
	inst.calls = 0
	again, err := r.Prepare(ctx, Options{Script: "hello.js", Source: []byte(script)})
	if err != nil {
		t.Fatalf("second Prepare() error: %v", err)
	}
	if again.Stats.CacheHits != 2 || again.Stats.Installs != 0 || inst.calls != 0 {
		t.Errorf("second run stats = %+v, installs = %d", again.Stats, inst.calls)
	}
}

func TestPrepareReadsScript(t *testing.T) {
	r, _, _ := newRunner(t)
	path := filepath.Join(t.TempDir(), "hello.js")
	if err := os.WriteFile(path, []byte(`include("bar", "2.0.0")`), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := r.Prepare(context.Background(), Options{Script: path})
	if err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}
	if keys := result.Table.Keys(); len(keys) != 1 || keys[0] != "bar@2.0.0" {
		t.Errorf("Keys() = %v", keys)
	}
}

func TestPrepareNoIncludes(t *testing.T) {
	r, inst, _ := newRunner(t)

	result, err := r.Prepare(context.Background(), Options{Script: "plain.js", Source: []byte(`console.log(1)`)})
	if err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}
	if result.Table.Len() != 0 || inst.calls != 0 {
		t.Errorf("table = %d entries, installs = %d", result.Table.Len(), inst.calls)
	}
}

func TestPrepareErrors(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		prefix  string
		code    errs.Code
		message string
	}{
		{
			name:   "no input",
			opts:   Options{},
			code:   errs.ErrCodeInvalidInput,
			prefix: "",
		},
		{
			name:   "missing file",
			opts:   Options{Script: filepath.Join(os.TempDir(), "shelf-does-not-exist.js")},
			prefix: "parse:",
			code:   errs.ErrCodeFileNotFound,
		},
		{
			name:   "syntax",
			opts:   Options{Script: "bad.js", Source: []byte(`const x = include("foo"`)},
			prefix: "parse:",
			code:   errs.ErrCodeInvalidSyntax,
		},
		{
			name:    "version required",
			opts:    Options{Script: "strict.js", Source: []byte(`include("bar")`), RequireVersion: true},
			prefix:  "parse:",
			code:    errs.ErrCodeInvalidDeclaration,
			message: "requires a version",
		},
		{
			name:    "conflict",
			opts:    Options{Script: "two.js", Source: []byte("include(\"foo\", \"1.0.0\");\ninclude(\"foo\", \"2.0.0\");")},
			prefix:  "resolve: two.js; Line 2",
			code:    errs.ErrCodeInvalidDeclaration,
			message: "conflicting versions",
		},
		{
			name:   "install failure",
			opts:   Options{Script: "missing.js", Source: []byte(`include("nope", "9.0.0")`)},
			prefix: "resolve:",
			code:   errs.ErrCodeInstall,
		},
		{
			name:   "unknown package",
			opts:   Options{Script: "unknown.js", Source: []byte(`include("nope", "^9.0.0")`)},
			prefix: "resolve:",
			code:   errs.ErrCodePackageNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, _ := newRunner(t)
			_, err := r.Prepare(context.Background(), tt.opts)
			if err == nil {
				t.Fatal("Prepare() should fail")
			}
			if !strings.HasPrefix(err.Error(), tt.prefix) {
				t.Errorf("error = %q, want prefix %q", err.Error(), tt.prefix)
			}
			if got := errs.GetCode(err); got != tt.code {
				t.Errorf("code = %v, want %v", got, tt.code)
			}
			if tt.message != "" && !strings.Contains(err.Error(), tt.message) {
				t.Errorf("error = %q, want %q", err.Error(), tt.message)
			}
		})
	}
}

func TestResolveErrorNamesScript(t *testing.T) {
	r, _, _ := newRunner(t)
	_, err := r.Prepare(context.Background(), Options{
		Script: "bad-name.js",
		Source: []byte(`const x = include("Not A Name", "1.0.0")`),
	})
	if !declare.IsDeclaration(err) {
		t.Fatalf("error = %v, want declaration error", err)
	}
	if !strings.Contains(err.Error(), `bad-name.js; Line 1; Error including "x"`) {
		t.Errorf("error = %q", err.Error())
	}
}

type recordingHooks struct {
	observability.NoopPipelineHooks
	events []string
}

func (h *recordingHooks) OnParseStart(_ context.Context, script string) {
	h.events = append(h.events, "parse-start "+script)
}

func (h *recordingHooks) OnParseComplete(_ context.Context, script string, n int, _ time.Duration, err error) {
	h.events = append(h.events, fmt.Sprintf("parse-complete %s %d %v", script, n, err != nil))
}

func (h *recordingHooks) OnResolveStart(_ context.Context, n int) {
	h.events = append(h.events, fmt.Sprintf("resolve-start %d", n))
}

func (h *recordingHooks) OnResolveComplete(_ context.Context, n int, _ time.Duration, err error) {
	h.events = append(h.events, fmt.Sprintf("resolve-complete %d %v", n, err != nil))
}

func TestPrepareHooks(t *testing.T) {
	hooks := &recordingHooks{}
	observability.SetPipelineHooks(hooks)
	t.Cleanup(observability.Reset)

	r, _, _ := newRunner(t)
	if _, err := r.Prepare(context.Background(), Options{Script: "hello.js", Source: []byte(script)}); err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}

	want := []string{
		"parse-start hello.js",
		"parse-complete hello.js 2 false",
		"resolve-start 2",
		"resolve-complete 2 false",
	}
	if strings.Join(hooks.events, "\n") != strings.Join(want, "\n") {
		t.Errorf("events = %q, want %q", hooks.events, want)
	}
}
