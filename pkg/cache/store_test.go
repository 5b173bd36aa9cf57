package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	errs "github.com/matzehuels/shelf/pkg/errors"
)

// stage creates a fake install directory holding a package.json.
func stage(t *testing.T, root, name, version string) string {
	t.Helper()
	dir, err := os.MkdirTemp(root, "stage-")
	if err != nil {
		t.Fatal(err)
	}
	body := fmt.Sprintf(`{"name":%q,"version":%q}`, name, version)
	if err := os.WriteFile(filepath.Join(dir, "package.json"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func versions(slots []Slot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.Version
	}
	return out
}

func TestListMissingPackage(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "cache"))

	slots, err := s.List("lodash")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(slots) != 0 {
		t.Errorf("List() = %v, want empty", slots)
	}
}

func TestCommitAndList(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s := New(filepath.Join(root, "cache"))

	for _, v := range []string{"1.2.0", "1.0.0", "2.0.0"} {
		if _, err := s.Commit(ctx, "foo", v, stage(t, root, "foo", v)); err != nil {
			t.Fatalf("Commit(%s) error: %v", v, err)
		}
	}

	slots, err := s.List("foo")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if got, want := versions(slots), []string{"1.0.0", "1.2.0", "2.0.0"}; !reflect.DeepEqual(got, want) {
		t.Errorf("List() versions = %v, want %v", got, want)
	}
	for _, sl := range slots {
		if sl.Path != filepath.Join(s.Root(), "foo", sl.Version) {
			t.Errorf("slot path = %s", sl.Path)
		}
		if sl.InstalledAt.IsZero() {
			t.Errorf("slot %s has no install time", sl.Version)
		}
		if _, err := os.Stat(filepath.Join(sl.Path, "package.json")); err != nil {
			t.Errorf("slot %s lost its contents: %v", sl.Version, err)
		}
	}
}

func TestListSkipsIncompleteEntries(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s := New(filepath.Join(root, "cache"))

	if _, err := s.Commit(ctx, "foo", "1.0.0", stage(t, root, "foo", "1.0.0")); err != nil {
		t.Fatal(err)
	}

	// A directory without a marker, a stray file and a hidden directory.
	if err := os.MkdirAll(filepath.Join(s.Root(), "foo", "9.9.9"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(s.Root(), "foo", "README"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(s.Root(), "foo", ".tmp"), 0o755); err != nil {
		t.Fatal(err)
	}

	slots, err := s.List("foo")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if got := versions(slots); !reflect.DeepEqual(got, []string{"1.0.0"}) {
		t.Errorf("List() versions = %v, want [1.0.0]", got)
	}

	if _, ok, _ := s.Lookup("foo", "9.9.9"); ok {
		t.Error("Lookup() should not report an incomplete slot")
	}
}

func TestListVanishedEntry(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s := New(filepath.Join(root, "cache"))

	slot, err := s.Commit(ctx, "foo", "1.0.0", stage(t, root, "foo", "1.0.0"))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(slot.Path); err != nil {
		t.Fatal(err)
	}

	slots, err := s.List("foo")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(slots) != 0 {
		t.Errorf("List() = %v, want empty", slots)
	}
	if _, ok, err := s.Lookup("foo", "1.0.0"); ok || err != nil {
		t.Errorf("Lookup() = %v, %v; want miss", ok, err)
	}
}

func TestLookup(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s := New(filepath.Join(root, "cache"))

	if _, err := s.Commit(ctx, "@types/node", "20.11.5", stage(t, root, "@types/node", "20.11.5")); err != nil {
		t.Fatal(err)
	}

	slot, ok, err := s.Lookup("@types/node", "20.11.5")
	if err != nil || !ok {
		t.Fatalf("Lookup() = %v, %v", ok, err)
	}
	if want := filepath.Join(s.Root(), "@types", "node", "20.11.5"); slot.Path != want {
		t.Errorf("Path = %s, want %s", slot.Path, want)
	}

	if _, ok, _ := s.Lookup("@types/node", "18.0.0"); ok {
		t.Error("Lookup() of another version should miss")
	}
}

func TestInvalidNames(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())

	if _, err := s.List("../etc"); !errs.Is(err, errs.ErrCodeInvalidPackage) {
		t.Errorf("List(../etc) error = %v, want INVALID_PACKAGE", err)
	}
	if _, _, err := s.Lookup("foo", "../1.0.0"); !errs.Is(err, errs.ErrCodeInvalidVersion) {
		t.Errorf("Lookup(foo, ../1.0.0) error = %v, want INVALID_VERSION", err)
	}
	if _, err := s.Commit(ctx, "foo bar", "1.0.0", t.TempDir()); !errs.Is(err, errs.ErrCodeInvalidPackage) {
		t.Errorf("Commit(foo bar) error = %v, want INVALID_PACKAGE", err)
	}
}

func TestCommitExistingSlotWins(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s := New(filepath.Join(root, "cache"))

	first, err := s.Commit(ctx, "foo", "1.0.0", stage(t, root, "foo", "1.0.0"))
	if err != nil {
		t.Fatal(err)
	}

	src := stage(t, root, "foo", "1.0.0")
	second, err := s.Commit(ctx, "foo", "1.0.0", src)
	if err != nil {
		t.Fatalf("second Commit() error: %v", err)
	}
	if second.Path != first.Path || !second.InstalledAt.Equal(first.InstalledAt) {
		t.Errorf("second Commit() = %+v, want existing %+v", second, first)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("losing staged directory should be discarded")
	}
}

func TestCommitReplacesIncompleteSlot(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s := New(filepath.Join(root, "cache"))

	leftover := filepath.Join(s.Root(), "foo", "1.0.0")
	if err := os.MkdirAll(filepath.Join(leftover, "node_modules"), 0o755); err != nil {
		t.Fatal(err)
	}

	slot, err := s.Commit(ctx, "foo", "1.0.0", stage(t, root, "foo", "1.0.0"))
	if err != nil {
		t.Fatalf("Commit() error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(slot.Path, MarkerFile)); err != nil {
		t.Errorf("committed slot has no marker: %v", err)
	}
	if _, err := os.Stat(filepath.Join(slot.Path, "node_modules")); !os.IsNotExist(err) {
		t.Error("incomplete leftover should have been replaced")
	}
}

func TestDiscardIncompleteKeepsMarkedSlot(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s := New(filepath.Join(root, "cache"))

	slot, err := s.Commit(ctx, "foo", "1.0.0", stage(t, root, "foo", "1.0.0"))
	if err != nil {
		t.Fatal(err)
	}

	// A process that saw the slot before its marker existed tries to
	// discard it after the commit finished.
	if err := discardIncomplete(slot.Path); err != nil {
		t.Fatalf("discardIncomplete() error: %v", err)
	}
	if _, ok, _ := s.Lookup("foo", "1.0.0"); !ok {
		t.Fatal("completed slot was removed")
	}
	if _, err := os.Stat(filepath.Join(slot.Path, "package.json")); err != nil {
		t.Errorf("slot contents lost: %v", err)
	}
	assertNoDiscardDirs(t, filepath.Dir(slot.Path))
}

func TestDiscardIncompleteRemovesLeftover(t *testing.T) {
	dir := t.TempDir()
	leftover := filepath.Join(dir, "1.0.0")
	if err := os.MkdirAll(filepath.Join(leftover, "node_modules"), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := discardIncomplete(leftover); err != nil {
		t.Fatalf("discardIncomplete() error: %v", err)
	}
	if _, err := os.Stat(leftover); !os.IsNotExist(err) {
		t.Errorf("leftover still present: %v", err)
	}
	if err := discardIncomplete(leftover); err != nil {
		t.Errorf("discardIncomplete() on a missing path error: %v", err)
	}
	assertNoDiscardDirs(t, dir)
}

func TestConcurrentCommitOverLeftover(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s := New(filepath.Join(root, "cache"))

	leftover := filepath.Join(s.Root(), "foo", "1.0.0")
	if err := os.MkdirAll(filepath.Join(leftover, "node_modules"), 0o755); err != nil {
		t.Fatal(err)
	}

	const n = 8
	srcs := make([]string, n)
	for i := range srcs {
		srcs[i] = stage(t, root, "foo", "1.0.0")
	}

	var wg sync.WaitGroup
	failures := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, failures[i] = s.Commit(ctx, "foo", "1.0.0", srcs[i])
		}(i)
	}
	wg.Wait()

	for i, err := range failures {
		if err != nil {
			t.Errorf("Commit #%d error: %v", i, err)
		}
	}
	slot, ok, _ := s.Lookup("foo", "1.0.0")
	if !ok {
		t.Fatal("no complete slot after concurrent commits")
	}
	if _, err := os.Stat(filepath.Join(slot.Path, "package.json")); err != nil {
		t.Errorf("slot contents lost: %v", err)
	}
	if _, err := os.Stat(filepath.Join(slot.Path, "node_modules")); !os.IsNotExist(err) {
		t.Error("leftover contents survived")
	}
	assertNoDiscardDirs(t, filepath.Dir(slot.Path))
}

func assertNoDiscardDirs(t *testing.T, dir string) {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, ".discard-*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("discard directories left behind: %v", matches)
	}
}

func TestConcurrentCommitLeavesOneSlot(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s := New(filepath.Join(root, "cache"))

	const n = 8
	srcs := make([]string, n)
	for i := range srcs {
		srcs[i] = stage(t, root, "foo", "1.0.0")
	}

	var wg sync.WaitGroup
	results := make([]Slot, n)
	errors := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errors[i] = s.Commit(ctx, "foo", "1.0.0", srcs[i])
		}(i)
	}
	wg.Wait()

	for i, err := range errors {
		if err != nil {
			t.Errorf("Commit #%d error: %v", i, err)
		}
		if results[i].Path != filepath.Join(s.Root(), "foo", "1.0.0") {
			t.Errorf("Commit #%d path = %s", i, results[i].Path)
		}
	}

	slots, err := s.List("foo")
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 1 {
		t.Errorf("List() = %d slots, want 1", len(slots))
	}
}

func TestNamesAndClear(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s := New(filepath.Join(root, "cache"))

	commits := []struct{ name, version string }{
		{"lodash", "4.17.21"},
		{"lodash", "4.17.20"},
		{"@types/node", "20.11.5"},
		{"chalk", "5.3.0"},
	}
	for _, c := range commits {
		if _, err := s.Commit(ctx, c.name, c.version, stage(t, root, c.name, c.version)); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(s.Staging("run-1"), 0o755); err != nil {
		t.Fatal(err)
	}

	names, err := s.Names()
	if err != nil {
		t.Fatalf("Names() error: %v", err)
	}
	if want := []string{"@types/node", "chalk", "lodash"}; !reflect.DeepEqual(names, want) {
		t.Errorf("Names() = %v, want %v", names, want)
	}

	count, err := s.Clear()
	if err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if count != 4 {
		t.Errorf("Clear() = %d, want 4", count)
	}
	if _, err := os.Stat(s.Root()); !os.IsNotExist(err) {
		t.Error("Clear() should remove the root")
	}

	// Clearing an absent cache is fine.
	if count, err := s.Clear(); err != nil || count != 0 {
		t.Errorf("second Clear() = %d, %v", count, err)
	}
}

func TestStaging(t *testing.T) {
	s := New(t.TempDir())

	dir := s.Staging("abc")
	if dir != filepath.Join(s.Root(), ".staging", "abc") {
		t.Errorf("Staging() = %s", dir)
	}
	if err := os.MkdirAll(filepath.Join(dir, "node_modules", "foo"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveStaging("abc"); err != nil {
		t.Fatalf("RemoveStaging() error: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("staging directory should be gone")
	}
	if err := s.RemoveStaging("abc"); err != nil {
		t.Errorf("RemoveStaging() twice error: %v", err)
	}
}
