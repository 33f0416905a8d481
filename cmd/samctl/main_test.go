package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"samledger/internal/blob"
	"samledger/internal/config"
	"samledger/internal/core"
	"samledger/internal/seed"
	"samledger/pkg/domain"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type cliEnv struct {
	dir    string
	config string
	blobs  string
}

func newCLIEnv(t *testing.T, extra string) cliEnv {
	t.Helper()
	dir := t.TempDir()
	env := cliEnv{dir: dir, config: filepath.Join(dir, "samledger.yaml"), blobs: filepath.Join(dir, "blobs")}
	body := "log:\n  level: error\nblob:\n  driver: fs\n  fs_root: " + env.blobs + "\n" + extra
	if err := os.WriteFile(env.config, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

func (e cliEnv) run(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(append([]string{"--config", e.config}, args...), &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

func (e cliEnv) mustRun(t *testing.T, out any, args ...string) {
	t.Helper()
	stdout, stderr, code := e.run(t, args...)
	if code != 0 {
		t.Fatalf("samctl %v exited %d: %s", args, code, stderr)
	}
	if out == nil {
		return
	}
	if err := json.Unmarshal([]byte(stdout), out); err != nil {
		t.Fatalf("decode output of %v: %v\n%s", args, err, stdout)
	}
}

func TestReharvestCommand(t *testing.T) {
	env := newCLIEnv(t, "")
	var report core.ReharvestReport
	env.mustRun(t, &report, "reharvest")
	if report.Reharvested != 3 || report.AuditID == "" {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestLedgerLoggerNamedOnce(t *testing.T) {
	obs, logs := observer.New(zapcore.InfoLevel)
	prev := newLogger
	newLogger = func(config.LogConfig) (*zap.Logger, error) { return zap.New(obs), nil }
	t.Cleanup(func() { newLogger = prev })

	env := newCLIEnv(t, "")
	env.mustRun(t, nil, "reharvest")
	entries := logs.FilterMessage("reharvesting complete").All()
	if len(entries) != 1 || entries[0].LoggerName != "ledger" {
		t.Fatalf("expected one entry from the ledger logger, got %+v", entries)
	}
}

func TestSetStatusRecordsAuditAndSavesFixture(t *testing.T) {
	env := newCLIEnv(t, "")
	fixture := filepath.Join(env.dir, "after.yaml")
	var updated domain.LicenseAllocation
	env.mustRun(t, &updated, "--save-fixture", fixture,
		"allocation", "set-status", "ALLOC1", "awaiting_inact", "--reason", "left the company")
	if updated.Status != domain.AllocStatusAwaitingInact {
		t.Fatalf("unexpected allocation %+v", updated)
	}
	last := updated.History[len(updated.History)-1]
	if last.Reason != "left the company" || last.CreatedByID != "P_ADMIN" {
		t.Fatalf("unexpected history entry %+v", last)
	}

	f, err := os.Open(fixture)
	if err != nil {
		t.Fatalf("open saved fixture: %v", err)
	}
	defer f.Close()
	saved, err := seed.Load(f)
	if err != nil {
		t.Fatalf("load saved fixture: %v", err)
	}
	found := false
	for _, entry := range saved.AuditLog {
		if entry.Action == "update_status" && entry.EntityID == "ALLOC1" && strings.Contains(entry.Details, "Ana") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected update_status audit entry in %+v", saved.AuditLog)
	}

	if _, stderr, code := env.run(t, "allocation", "set-status", "ALLOC404", "HISTORY"); code == 0 || !strings.Contains(stderr, "not found") {
		t.Fatalf("expected not found failure, got %d %s", code, stderr)
	}
	if _, stderr, code := env.run(t, "allocation", "set-status", "ALLOC1", "PAUSED"); code == 0 || !strings.Contains(stderr, "invalid allocation status") {
		t.Fatalf("expected invalid status failure, got %d %s", code, stderr)
	}
}

func TestImportLocalFileDryRun(t *testing.T) {
	env := newCLIEnv(t, "")
	path := filepath.Join(env.dir, "hr.csv")
	csv := "Product,Email,Name,Vendor,Cost\nNotion,new.hire@company.com,New Hire,Notion Labs,96\n"
	if err := os.WriteFile(path, []byte(csv), 0o600); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	var out importOutput
	env.mustRun(t, &out, "import", path, "--dry-run")
	if !out.DryRun || out.Mapping != "auto" || out.Result.OK != 1 || len(out.Result.Errors) != 0 {
		t.Fatalf("unexpected import output %+v", out)
	}

	env.mustRun(t, &out, "import", path, "--map", "productName=Product", "--auto-map", "--dry-run")
	if !strings.Contains(out.Mapping, "personEmail=Email") || !strings.Contains(out.Mapping, "productName=Product") || out.Result.OK != 1 {
		t.Fatalf("expected completed mapping, got %+v", out)
	}

	if _, stderr, code := env.run(t, "import", path, "--map", "colour=Product"); code == 0 || !strings.Contains(stderr, "unknown import field") {
		t.Fatalf("expected mapping error, got %d %s", code, stderr)
	}
}

func TestImportFromBlobArchivesFile(t *testing.T) {
	env := newCLIEnv(t, "")
	ctx := context.Background()
	store, err := blob.Open(ctx, blob.Config{Driver: blob.DriverFilesystem, FSRoot: env.blobs})
	if err != nil {
		t.Fatalf("open blobs: %v", err)
	}
	csv := "Software,E-mail,Nome\nMiro Business,paula@company.com,Paula\n"
	if _, err := store.Put(ctx, "inbox/april.csv", strings.NewReader(csv), blob.PutOptions{ContentType: "text/csv"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	var out importOutput
	env.mustRun(t, &out, "import", "inbox/april.csv", "--blob",
		"--map", "productName=Software", "--map", "personEmail=E-mail", "--map", "personName=Nome")
	if out.Source != "blob:inbox/april.csv" || out.Result.OK != 1 {
		t.Fatalf("unexpected import output %+v", out)
	}
	if _, _, err := store.Get(ctx, "archive/inbox/april.csv"); err != nil {
		t.Fatalf("expected archived import: %v", err)
	}
	if _, _, err := store.Get(ctx, "inbox/april.csv"); err == nil {
		t.Fatalf("expected inbox file removed")
	}
}

func TestReportCommands(t *testing.T) {
	env := newCLIEnv(t, "")
	var pools []core.PoolWithDetails
	env.mustRun(t, &pools, "report", "pools")
	if len(pools) != 7 || pools[0].Product.Name == "" {
		t.Fatalf("unexpected pools %+v", pools)
	}
	var compliance []core.ComplianceEntry
	env.mustRun(t, &compliance, "report", "compliance")
	if len(compliance) != 7 {
		t.Fatalf("expected one compliance row per pool, got %d", len(compliance))
	}
	var reclaimable []core.ReclaimableAllocation
	env.mustRun(t, &reclaimable, "report", "reclaimable")
	if len(reclaimable) == 0 {
		t.Fatalf("expected reclaimable allocations")
	}
	var dashboard map[string]any
	env.mustRun(t, &dashboard, "report", "dashboard")
	if len(dashboard) == 0 {
		t.Fatalf("expected dashboard fields")
	}
	if _, _, code := env.run(t, "report", "weather"); code == 0 {
		t.Fatalf("expected unknown report to fail")
	}
}

func TestMetricsTextfile(t *testing.T) {
	env := newCLIEnv(t, "")
	metrics := filepath.Join(env.dir, "samledger.prom")
	env.mustRun(t, nil, "--metrics-file", metrics, "reharvest")
	data, err := os.ReadFile(metrics)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	text := string(data)
	for _, want := range []string{
		`samledger_operations_total{operation="run_reharvesting_job",status="success"} 1`,
		`samledger_pool_available_quantity{pool="POOL-PROD1"`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in metrics:\n%s", want, text)
		}
	}
}

func TestSeedPublishThenSeedFromSQLite(t *testing.T) {
	env := newCLIEnv(t, "")
	db := filepath.Join(env.dir, "seed.db")
	var published map[string]any
	env.mustRun(t, &published, "seed", "publish", "--driver", "sqlite", "--sqlite-path", db)
	if published["allocations"] != float64(20) {
		t.Fatalf("unexpected publish output %v", published)
	}

	fromDB := newCLIEnv(t, "seed:\n  driver: sqlite\n  sqlite_path: "+db+"\n")
	var pools []core.PoolWithDetails
	fromDB.mustRun(t, &pools, "report", "pools")
	if len(pools) != 7 {
		t.Fatalf("expected pools seeded from sqlite, got %d", len(pools))
	}

	stdout, _, code := env.run(t, "seed", "export")
	if code != 0 || !strings.Contains(stdout, "POOL-PROD1") {
		t.Fatalf("expected fixture export, got %d %s", code, stdout)
	}
	if _, _, code := env.run(t, "seed", "publish", "--driver", "file"); code == 0 {
		t.Fatalf("expected file driver publish to fail")
	}
}

func TestScheduleRefusesWhenDisabled(t *testing.T) {
	env := newCLIEnv(t, "reharvest:\n  disabled: true\n")
	if _, stderr, code := env.run(t, "schedule"); code == 0 || !strings.Contains(stderr, "disabled") {
		t.Fatalf("expected disabled schedule to fail, got %d %s", code, stderr)
	}
}

func TestBadConfigFails(t *testing.T) {
	env := newCLIEnv(t, "seed:\n  driver: mongo\n")
	if _, stderr, code := env.run(t, "reharvest"); code != 1 || !strings.Contains(stderr, "unknown seed driver") {
		t.Fatalf("expected config failure, got %d %s", code, stderr)
	}
}
