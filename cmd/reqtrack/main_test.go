package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hylla/reqtrack/internal/adapters/auth"
	"github.com/hylla/reqtrack/internal/app"
	"github.com/hylla/reqtrack/internal/domain"
)

// TestMain sets deterministic environment defaults for CLI tests.
func TestMain(m *testing.M) {
	_ = os.Setenv("REQTRACK_DEV_MODE", "false")
	os.Exit(m.Run())
}

// cliFixture holds temp paths for one CLI scenario.
type cliFixture struct {
	dir     string
	dbPath  string
	cfgPath string
	monday  time.Time
}

// newCLIFixture writes a config naming a manager identity and imports a seeded snapshot.
func newCLIFixture(t *testing.T) cliFixture {
	t.Helper()
	dir := t.TempDir()
	f := cliFixture{
		dir:     dir,
		dbPath:  filepath.Join(dir, "reqtrack.db"),
		cfgPath: filepath.Join(dir, "config.toml"),
		monday:  app.WeekWindow(time.Now().UTC(), -1).Start,
	}
	cfg := strings.Join([]string{
		"[tracker]",
		`timezone = "UTC"`,
		"",
		"[identity]",
		`actor_id = "boss"`,
		`role = "manager"`,
		"",
		"[server]",
		`jwt_secret = "test-secret"`,
		"",
	}, "\n")
	if err := os.WriteFile(f.cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("WriteFile(config) error = %v", err)
	}

	team := "core"
	year := 2024
	assignee := "dev-1"
	dev := "dev-1"
	snap := app.Snapshot{
		Version: app.SnapshotVersion,
		Requests: []domain.Request{{
			ID:         "r1",
			InternalID: "REQ-1",
			Title:      "Login page",
			AssigneeID: &assignee,
			TeamID:     &team,
			FiscalYear: &year,
			Status:     "open",
			CreatedAt:  f.monday,
		}},
		Users: []domain.User{
			{ID: "boss", DisplayName: "Boss", Role: domain.RoleManager, TeamID: &team},
			{ID: "dev-1", DisplayName: "Dana", Role: domain.RoleDeveloper, TeamID: &team},
		},
		Entries: []domain.ActivityEntry{
			{
				ID:           "e1",
				Seq:          1,
				RequestID:    "r1",
				RequestTitle: "Login page",
				ActorID:      &dev,
				ActorName:    "Dana",
				Type:         domain.ActivityProgressUpdate,
				Description:  "wired the form",
				CreatedAt:    f.monday.Add(9 * time.Hour),
			},
			{
				ID:           "e2",
				Seq:          2,
				RequestID:    "r1",
				RequestTitle: "Login page",
				ActorID:      &dev,
				ActorName:    "Dana",
				Type:         domain.ActivityBlockerReported,
				Description:  "waiting on SSO credentials",
				CreatedAt:    f.monday.Add(33 * time.Hour),
			},
		},
	}
	encoded, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("Marshal(snapshot) error = %v", err)
	}
	inPath := filepath.Join(dir, "seed.json")
	if err := os.WriteFile(inPath, encoded, 0o644); err != nil {
		t.Fatalf("WriteFile(seed) error = %v", err)
	}
	var out strings.Builder
	if err := f.run(t, &out, "import", "--in", inPath); err != nil {
		t.Fatalf("run(import) error = %v", err)
	}
	if !strings.Contains(out.String(), "entries_added: 2") {
		t.Fatalf("expected two imported entries, got %q", out.String())
	}
	return f
}

// run executes the CLI with the fixture's config and database.
func (f cliFixture) run(t *testing.T, stdout io.Writer, args ...string) error {
	t.Helper()
	full := append([]string{"--config", f.cfgPath, "--db", f.dbPath}, args...)
	return run(context.Background(), full, stdout, io.Discard)
}

// TestRunVersion verifies the version flag output.
func TestRunVersion(t *testing.T) {
	var out strings.Builder
	if err := run(context.Background(), []string{"--version"}, &out, io.Discard); err != nil {
		t.Fatalf("run(version) error = %v", err)
	}
	if !strings.Contains(out.String(), "reqtrack") {
		t.Fatalf("expected version output, got %q", out.String())
	}
}

// TestRunUnknownCommand verifies unknown subcommands fail.
func TestRunUnknownCommand(t *testing.T) {
	if err := run(context.Background(), []string{"nope"}, io.Discard, io.Discard); err == nil {
		t.Fatal("expected unknown command error")
	}
}

// TestRunPathsCommand verifies app and dev-mode flags flow into path output.
func TestRunPathsCommand(t *testing.T) {
	var out strings.Builder
	if err := run(context.Background(), []string{"--app", "tracky", "--dev", "paths"}, &out, io.Discard); err != nil {
		t.Fatalf("run(paths) error = %v", err)
	}
	output := out.String()
	for _, want := range []string{"app: tracky", "dev_mode: true", "tracky-dev"} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected %q in paths output, got %q", want, output)
		}
	}
}

// TestRunTimelineJSON verifies the weekly timeline buckets imported entries by workday.
func TestRunTimelineJSON(t *testing.T) {
	f := newCLIFixture(t)
	var out strings.Builder
	if err := f.run(t, &out, "timeline", "--week", "-1", "--format", "json"); err != nil {
		t.Fatalf("run(timeline) error = %v", err)
	}
	var timeline domain.WeeklyTimeline
	if err := json.Unmarshal([]byte(out.String()), &timeline); err != nil {
		t.Fatalf("Unmarshal(timeline) error = %v, output %q", err, out.String())
	}
	if got := timeline.Window.StartDate(); got != f.monday.Format(domain.DateLayout) {
		t.Fatalf("window start = %q, want %q", got, f.monday.Format(domain.DateLayout))
	}
	if len(timeline.Days) != domain.WorkdaysPerWeek {
		t.Fatalf("expected %d days, got %d", domain.WorkdaysPerWeek, len(timeline.Days))
	}
	if len(timeline.Days[0].Entries) != 1 || len(timeline.Days[1].Entries) != 1 {
		t.Fatalf("expected one entry on Monday and Tuesday, got %#v", timeline.Days)
	}
	if timeline.Metrics.TotalEntries != 2 || timeline.Metrics.ActiveBlockers != 1 || timeline.Metrics.ProgressUpdates != 1 {
		t.Fatalf("unexpected metrics %#v", timeline.Metrics)
	}

	out.Reset()
	if err := f.run(t, &out, "timeline", "--week", "-1", "--actor", "boss"); err != nil {
		t.Fatalf("run(timeline text) error = %v", err)
	}
	if !strings.Contains(out.String(), "No activity") {
		t.Fatalf("expected empty-day marker for filtered actor, got %q", out.String())
	}
}

// TestRunBlockersResolveFlow verifies the configured identity can resolve an open blocker.
func TestRunBlockersResolveFlow(t *testing.T) {
	f := newCLIFixture(t)

	var out strings.Builder
	if err := f.run(t, &out, "blockers", "--team", "core", "--format", "json"); err != nil {
		t.Fatalf("run(blockers) error = %v", err)
	}
	var listed struct {
		Blockers []domain.ActiveBlocker `json:"blockers"`
		Count    int                    `json:"count"`
	}
	if err := json.Unmarshal([]byte(out.String()), &listed); err != nil {
		t.Fatalf("Unmarshal(blockers) error = %v", err)
	}
	if listed.Count != 1 || listed.Blockers[0].OpeningEvent.ID != "e2" {
		t.Fatalf("unexpected blockers %#v", listed)
	}
	if listed.Blockers[0].AssigneeName != "Dana" {
		t.Fatalf("assignee name = %q, want Dana", listed.Blockers[0].AssigneeName)
	}

	out.Reset()
	if err := f.run(t, &out, "resolve", "r1"); err != nil {
		t.Fatalf("run(resolve) error = %v", err)
	}
	if !strings.Contains(out.String(), "Blocker resolved after") {
		t.Fatalf("expected resolution description, got %q", out.String())
	}

	out.Reset()
	if err := f.run(t, &out, "blockers"); err != nil {
		t.Fatalf("run(blockers after resolve) error = %v", err)
	}
	if !strings.Contains(out.String(), "No active blockers") {
		t.Fatalf("expected empty blocker list, got %q", out.String())
	}

	if err := f.run(t, io.Discard, "resolve", "r1"); err == nil || !strings.Contains(err.Error(), app.ErrNoOpenBlocker.Error()) {
		t.Fatalf("expected no open blocker error, got %v", err)
	}
}

// TestRunLogCommand verifies activity recording through the CLI.
func TestRunLogCommand(t *testing.T) {
	f := newCLIFixture(t)

	var out strings.Builder
	if err := f.run(t, &out, "log", "r1", "--type", "status_change", "--from", "open", "--to", "in_progress"); err != nil {
		t.Fatalf("run(log status) error = %v", err)
	}
	if !strings.Contains(out.String(), "status_change") {
		t.Fatalf("expected status change output, got %q", out.String())
	}
	if err := f.run(t, io.Discard, "log", "r1", "--type", "progress_update", "-m", "halfway", "--meta", "percent=50"); err != nil {
		t.Fatalf("run(log progress) error = %v", err)
	}
	if err := f.run(t, io.Discard, "log", "r1", "--meta", "broken"); err == nil {
		t.Fatal("expected malformed --meta error")
	}
	if err := f.run(t, io.Discard, "log", "r1", "--type", "blocker_resolved", "-m", "skip"); err == nil {
		t.Fatal("expected blocker_resolved to be rejected by log")
	}
	if err := f.run(t, io.Discard, "log", "missing", "-m", "hello"); err == nil {
		t.Fatal("expected unknown request error")
	}

	out.Reset()
	if err := f.run(t, &out, "export"); err != nil {
		t.Fatalf("run(export) error = %v", err)
	}
	var snap app.Snapshot
	if err := json.Unmarshal([]byte(out.String()), &snap); err != nil {
		t.Fatalf("Unmarshal(export) error = %v", err)
	}
	if len(snap.Entries) != 4 {
		t.Fatalf("expected 4 exported entries, got %d", len(snap.Entries))
	}
	last := snap.Entries[len(snap.Entries)-1]
	if last.ActorName != "Boss" || last.MetadataString("percent") != "50" {
		t.Fatalf("unexpected last entry %#v", last)
	}
}

// TestRunExportImportRoundTrip verifies exports reimport as skipped duplicates.
func TestRunExportImportRoundTrip(t *testing.T) {
	f := newCLIFixture(t)
	outPath := filepath.Join(f.dir, "nested", "snapshot.json")
	if err := f.run(t, io.Discard, "export", "--out", outPath); err != nil {
		t.Fatalf("run(export) error = %v", err)
	}
	var out strings.Builder
	if err := f.run(t, &out, "import", "--in", outPath); err != nil {
		t.Fatalf("run(import) error = %v", err)
	}
	if !strings.Contains(out.String(), "entries_added: 0") || !strings.Contains(out.String(), "entries_skipped: 2") {
		t.Fatalf("expected duplicate entries skipped, got %q", out.String())
	}
	if err := f.run(t, io.Discard, "import"); err == nil {
		t.Fatal("expected missing --in error")
	}
}

// TestRunTokenCommand verifies issued tokens verify back to the directory user.
func TestRunTokenCommand(t *testing.T) {
	f := newCLIFixture(t)
	var out strings.Builder
	if err := f.run(t, &out, "token", "--user", "dev-1", "--ttl", "1h"); err != nil {
		t.Fatalf("run(token) error = %v", err)
	}
	signer, err := auth.NewSigner("test-secret", "reqtrack", nil)
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}
	actor, err := signer.Verify(strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if actor.ID != "dev-1" || actor.Role != domain.RoleDeveloper {
		t.Fatalf("unexpected actor %#v", actor)
	}
	if err := f.run(t, io.Discard, "token", "--user", "ghost"); err == nil {
		t.Fatal("expected unknown user error")
	}
}

// TestRunConfigAndDBEnvOverrides verifies env-based config and database paths.
func TestRunConfigAndDBEnvOverrides(t *testing.T) {
	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "env.db")
	cfgPath := filepath.Join(tmp, "env.toml")
	if err := os.WriteFile(cfgPath, []byte("[database]\npath = \"/tmp/ignore-me.db\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("REQTRACK_CONFIG", cfgPath)
	t.Setenv("REQTRACK_DB_PATH", dbPath)

	if err := run(context.Background(), []string{"export", "--out", filepath.Join(tmp, "out.json")}, io.Discard, io.Discard); err != nil {
		t.Fatalf("run(export with env paths) error = %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("expected db created at env path, stat error %v", err)
	}
}

// TestRunRejectsInvalidConfig verifies config validation failures stop the command.
func TestRunRejectsInvalidConfig(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "bad.toml")
	if err := os.WriteFile(cfgPath, []byte("[logging]\nlevel = \"loud\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	err := run(context.Background(), []string{"--config", cfgPath, "--db", filepath.Join(tmp, "x.db"), "blockers"}, io.Discard, io.Discard)
	if err == nil {
		t.Fatal("expected invalid logging level error")
	}
}

// TestRunRejectsBadFormat verifies --format validation.
func TestRunRejectsBadFormat(t *testing.T) {
	if err := run(context.Background(), []string{"timeline", "--format", "xml"}, io.Discard, io.Discard); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

// TestParseBoolEnv verifies env bool parsing.
func TestParseBoolEnv(t *testing.T) {
	t.Setenv("REQTRACK_BOOL_TEST", "true")
	if v, ok := parseBoolEnv("REQTRACK_BOOL_TEST"); !ok || !v {
		t.Fatalf("expected true,true got %t,%t", v, ok)
	}
	t.Setenv("REQTRACK_BOOL_TEST", "maybe")
	if _, ok := parseBoolEnv("REQTRACK_BOOL_TEST"); ok {
		t.Fatal("expected malformed bool to be ignored")
	}
	t.Setenv("REQTRACK_BOOL_TEST", "")
	if _, ok := parseBoolEnv("REQTRACK_BOOL_TEST"); ok {
		t.Fatal("expected empty bool to be ignored")
	}
}

// TestParseMetadata verifies key=value flag parsing.
func TestParseMetadata(t *testing.T) {
	got, err := parseMetadata([]string{"a=1", " b = two "})
	if err != nil {
		t.Fatalf("parseMetadata() error = %v", err)
	}
	if got["a"] != "1" || got["b"] != "two" {
		t.Fatalf("unexpected metadata %#v", got)
	}
	if got, err := parseMetadata(nil); err != nil || got != nil {
		t.Fatalf("expected nil metadata, got %#v, %v", got, err)
	}
	if _, err := parseMetadata([]string{"=x"}); err == nil {
		t.Fatal("expected empty key error")
	}
}
