package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type recordingT struct {
	msg string
}

func (r *recordingT) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func TestPredicates(t *testing.T) {
	cases := []struct {
		name string
		fn   func(string) bool
		in   string
		want bool
	}{
		{"domain", DomainImportForbidden, "samledger/pkg/domain", true},
		{"domain versioned", DomainImportForbidden, "example.com/mod/pkg/domain@v1.2.3", true},
		{"domain subpackage", DomainImportForbidden, "samledger/pkg/domain/extra", false},
		{"domain lookalike", DomainImportForbidden, "samledger/pkg/domainutil", false},
		{"internal", InternalImportForbidden, "samledger/internal/core", true},
		{"internal bare", InternalImportForbidden, "internal", false},
		{"pkg", InternalImportForbidden, "samledger/pkg/domain", false},
		{"infra", InfraImportForbidden, "samledger/internal/infra/persistence/memory", true},
		{"infra root", InfraImportForbidden, "samledger/internal/infra", true},
		{"blob wrapper", InfraImportForbidden, "samledger/internal/blob", false},
		{"sqlite", SQLDriverForbidden, "modernc.org/sqlite", true},
		{"sqlite lib", SQLDriverForbidden, "modernc.org/sqlite/lib", true},
		{"pgx", SQLDriverForbidden, "github.com/jackc/pgx/v5/stdlib", true},
		{"database/sql", SQLDriverForbidden, "database/sql", false},
	}
	for _, tc := range cases {
		if got := tc.fn(tc.in); got != tc.want {
			t.Fatalf("%s: predicate(%q)=%v want %v", tc.name, tc.in, got, tc.want)
		}
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"ok.go":       "package tmp\nimport (\n\t\"fmt\"\n\talias \"context\"\n)\nfunc X() { fmt.Println(alias.Background()) }\n",
		"bad.go":      "package tmp\nimport \"samledger/internal/infra/persistence/sqlite\"\nvar _ = sqlite.DefaultPath\n",
		"bad_test.go": "package tmp\nimport \"samledger/internal/infra/blob/fs\"\n",
		"notes.txt":   "import \"samledger/internal/infra\"",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	viols, err := directImportViolations(dir, InfraImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || !strings.Contains(viols[0], "(in bad.go)") {
		t.Fatalf("expected only bad.go to violate, got %v", viols)
	}

	if _, err := directImportViolations(filepath.Join(dir, "missing"), InfraImportForbidden); err == nil {
		t.Fatalf("expected missing dir error")
	}
}

func TestAssertNoDirectImportsPasses(t *testing.T) {
	dir := t.TempDir()
	src := []byte("package tmp\nimport \"fmt\"\nfunc X(){fmt.Println(1)}")
	if err := os.WriteFile(filepath.Join(dir, "x.go"), src, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	AssertNoDirectImports(t, dir, InternalImportForbidden, "none")
}

func TestTransitiveViolationsUseGoList(t *testing.T) {
	orig := goListDeps
	t.Cleanup(func() { goListDeps = orig })

	goListDeps = func(string) ([]byte, error) {
		return []byte("fmt\nsamledger/internal/core\n\nmodernc.org/sqlite\n"), nil
	}
	viols, _, err := transitiveDependencyViolations("./...", SQLDriverForbidden)
	if err != nil || len(viols) != 1 || viols[0] != "modernc.org/sqlite" {
		t.Fatalf("unexpected violations %v %v", viols, err)
	}

	goListDeps = func(string) ([]byte, error) { return []byte("no go files"), errors.New("exit status 1") }
	if _, out, err := transitiveDependencyViolations(".", SQLDriverForbidden); err == nil || string(out) != "no go files" {
		t.Fatalf("expected go list failure to surface, got %v %q", err, out)
	}
}

func TestFailIfViolations(t *testing.T) {
	rec := &recordingT{}
	failIfViolations(rec, "direct imports", "layering", nil)
	if rec.msg != "" {
		t.Fatalf("expected no failure, got %q", rec.msg)
	}
	failIfViolations(rec, "direct imports", "layering", []string{"a", "b"})
	if !strings.Contains(rec.msg, "forbidden direct imports detected (layering)") || !strings.Contains(rec.msg, "a\nb") {
		t.Fatalf("unexpected failure message %q", rec.msg)
	}
}
