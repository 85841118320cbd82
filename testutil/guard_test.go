package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type recorder struct{ msg string }

func (r *recorder) Fatalf(format string, _ ...any) { r.msg = format }

func TestInternalImportForbidden(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"skylink/internal/core", true},
		{"example.com/mod/internal/x", true},
		{"skylink/pkg/domain", false},
		{"internalize", false},
	}
	for _, c := range cases {
		if got := InternalImportForbidden(c.in); got != c.want {
			t.Fatalf("InternalImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestThirdPartyImport(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"fmt", false},
		{"encoding/json", false},
		{"skylink", false},
		{"skylink/pkg/errors", false},
		{"skylinkx/foo", false},
		{"go.uber.org/zap", true},
		{"github.com/cockroachdb/errors", true},
	}
	for _, c := range cases {
		if got := ThirdPartyImport(c.in); got != c.want {
			t.Fatalf("ThirdPartyImport(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestExceptAndAnyOf(t *testing.T) {
	pred := AnyOf(InternalImportForbidden, Except(ThirdPartyImport, "github.com/cockroachdb/errors"))
	if pred("github.com/cockroachdb/errors") {
		t.Fatalf("allowed path matched")
	}
	if pred("github.com/cockroachdb/errors/errbase") {
		t.Fatalf("allowed subpackage matched")
	}
	if !pred("github.com/cockroachdb/errorsx") {
		t.Fatalf("sibling path with shared prefix should still match")
	}
	if !pred("skylink/internal/logger") {
		t.Fatalf("internal path should match")
	}
	if pred("strings") {
		t.Fatalf("stdlib path matched")
	}
}

func writeFile(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package tmp\nimport (\n\t\"fmt\"\n\t\"skylink/internal/core\"\n)\nvar _ = fmt.Sprint\nvar _ core.Session\n")
	writeFile(t, dir, "a_test.go", "package tmp\nimport \"skylink/internal/bus\"\n")
	writeFile(t, dir, "notes.txt", "import \"skylink/internal/x\"")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, filepath.Join(dir, "sub"), "b.go", "package sub\nimport \"skylink/internal/y\"\n")

	viols, err := directImportViolations(dir, InternalImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || viols[0] != "skylink/internal/core (in a.go)" {
		t.Fatalf("unexpected violations %v", viols)
	}
}

func TestDirectImportViolationsParseError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.go", "package tmp\nimport (\n")
	if _, err := directImportViolations(dir, InternalImportForbidden); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := directImportViolations(filepath.Join(dir, "missing"), InternalImportForbidden); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestAssertNoDirectImportsClean(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "x.go", "package tmp\nimport \"fmt\"\nfunc X() { fmt.Println(1) }\n")
	AssertNoDirectImports(t, dir, InternalImportForbidden, "none")
}

func TestTransitiveDependencyViolations(t *testing.T) {
	prev := goListDeps
	t.Cleanup(func() { goListDeps = prev })
	goListDeps = func(string) ([]byte, error) {
		return []byte("fmt\nskylink/pkg/domain\n\nskylink/internal/core\n"), nil
	}
	viols, _, err := transitiveDependencyViolations("./...", InternalImportForbidden)
	if err != nil {
		t.Fatalf("deps: %v", err)
	}
	if len(viols) != 1 || viols[0] != "skylink/internal/core" {
		t.Fatalf("unexpected violations %v", viols)
	}
	AssertNoTransitiveDependency(t, "./...", func(string) bool { return false }, "none")
}

func TestFailHelpers(t *testing.T) {
	var r recorder
	failIfDirectViolations(&r, "reason", nil)
	failIfTransitiveViolations(&r, "reason", nil)
	if r.msg != "" {
		t.Fatalf("no violations should not fail")
	}
	failIfDirectViolations(&r, "reason", []string{"x"})
	if !strings.Contains(r.msg, "direct imports") {
		t.Fatalf("unexpected message %q", r.msg)
	}
	failIfTransitiveViolations(&r, "reason", []string{"x"})
	if !strings.Contains(r.msg, "transitive") {
		t.Fatalf("unexpected message %q", r.msg)
	}
}
