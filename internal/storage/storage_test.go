package storage

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNewSQLiteStore(t *testing.T) {
	store := newTestStore(t)
	if store.db == nil {
		t.Fatal("Database connection is nil")
	}
	n, err := store.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected empty store, got %d articles", n)
	}
}

func TestNewSQLiteStore_MigratesLegacyPosts(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "legacy.db")

	legacy, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	// Recreate posts the way the first deployment had it, without published_at.
	if _, err := legacy.db.Exec(`DROP TABLE article_summaries; DROP TABLE posts;
		CREATE TABLE posts (url TEXT PRIMARY KEY, title TEXT, created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP);
		INSERT INTO posts (url, title) VALUES ('https://example.com/news/1', 'old');`); err != nil {
		t.Fatalf("failed to build legacy schema: %v", err)
	}
	legacy.Close()

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer store.Close()

	missing, err := store.MissingDates()
	if err != nil {
		t.Fatalf("MissingDates failed: %v", err)
	}
	if len(missing) != 1 || missing[0] != "https://example.com/news/1" {
		t.Errorf("expected migrated article without date, got %v", missing)
	}
}

func TestInsertNew_Idempotent(t *testing.T) {
	store := newTestStore(t)
	batch := []Candidate{
		{URL: "https://example.com/news/1", Title: "One"},
		{URL: "https://example.com/news/2", Title: "Two"},
		{URL: "https://example.com/news/3", Title: "Three"},
	}

	first, err := store.InsertNew(batch)
	if err != nil {
		t.Fatalf("first InsertNew failed: %v", err)
	}
	if len(first) != 3 {
		t.Fatalf("expected 3 inserted, got %d", len(first))
	}

	second, err := store.InsertNew(batch)
	if err != nil {
		t.Fatalf("second InsertNew failed: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("expected nothing inserted on re-run, got %d", len(second))
	}

	n, _ := store.Count()
	if n != 3 {
		t.Errorf("expected 3 stored articles, got %d", n)
	}
}

func TestInsertNew_BatchSelfDedup(t *testing.T) {
	store := newTestStore(t)
	inserted, err := store.InsertNew([]Candidate{
		{URL: "https://example.com/news/x", Title: "first"},
		{URL: "https://example.com/news/x", Title: "second"},
	})
	if err != nil {
		t.Fatalf("InsertNew failed: %v", err)
	}
	if len(inserted) != 1 {
		t.Fatalf("expected 1 inserted, got %d", len(inserted))
	}
	if inserted[0].Title != "first" {
		t.Errorf("expected first occurrence to win, got %q", inserted[0].Title)
	}

	a, err := store.Find("https://example.com/news/x")
	if err != nil || a == nil {
		t.Fatalf("Find failed: %v", err)
	}
	if a.Title != "first" {
		t.Errorf("stored title = %q, want first", a.Title)
	}
}

func TestInsertNew_PreservesOrderAndPlaceholder(t *testing.T) {
	store := newTestStore(t)
	store.InsertNew([]Candidate{{URL: "https://example.com/news/b", Title: "B"}})

	inserted, err := store.InsertNew([]Candidate{
		{URL: "https://example.com/news/c", Title: "  "},
		{URL: "https://example.com/news/b", Title: "B again"},
		{URL: "https://example.com/news/a", Title: "A"},
		{URL: "", Title: "no url"},
	})
	if err != nil {
		t.Fatalf("InsertNew failed: %v", err)
	}
	if len(inserted) != 2 {
		t.Fatalf("expected 2 inserted, got %d", len(inserted))
	}
	if inserted[0].URL != "https://example.com/news/c" || inserted[1].URL != "https://example.com/news/a" {
		t.Errorf("unexpected insertion order: %s, %s", inserted[0].URL, inserted[1].URL)
	}
	if inserted[0].Title != UntitledPlaceholder {
		t.Errorf("expected placeholder title, got %q", inserted[0].Title)
	}
}

func TestGetPage_OrdersByEffectiveDate(t *testing.T) {
	store := newTestStore(t)

	pubA := date(2024, 1, 1)
	pubC := date(2024, 3, 1)

	store.now = func() time.Time { return date(2024, 6, 1) }
	if _, err := store.InsertNew([]Candidate{{URL: "B", Title: "B"}}); err != nil {
		t.Fatalf("InsertNew failed: %v", err)
	}
	store.now = func() time.Time { return date(2024, 7, 1) }
	if _, err := store.InsertNew([]Candidate{
		{URL: "A", Title: "A", PublishedAt: &pubA},
		{URL: "C", Title: "C", PublishedAt: &pubC},
	}); err != nil {
		t.Fatalf("InsertNew failed: %v", err)
	}

	page, err := store.GetPage(1, 10)
	if err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}
	var got []string
	for _, a := range page {
		got = append(got, a.URL)
	}
	want := []string{"B", "C", "A"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestGetPage_Pagination(t *testing.T) {
	store := newTestStore(t)
	var batch []Candidate
	for i := 0; i < 45; i++ {
		p := date(2024, 1, 1).Add(time.Duration(i) * time.Hour)
		batch = append(batch, Candidate{URL: fmt.Sprintf("https://example.com/news/%02d", i), Title: "t", PublishedAt: &p})
	}
	if _, err := store.InsertNew(batch); err != nil {
		t.Fatalf("InsertNew failed: %v", err)
	}

	sizes := []int{20, 20, 5}
	seen := map[string]bool{}
	for i, want := range sizes {
		page, err := store.GetPage(i+1, 20)
		if err != nil {
			t.Fatalf("GetPage(%d) failed: %v", i+1, err)
		}
		if len(page) != want {
			t.Errorf("page %d: got %d articles, want %d", i+1, len(page), want)
		}
		for _, a := range page {
			if seen[a.URL] {
				t.Errorf("article %s appears on more than one page", a.URL)
			}
			seen[a.URL] = true
		}
	}

	first, _ := store.GetPage(1, 20)
	if first[0].URL != "https://example.com/news/44" {
		t.Errorf("newest article first: got %s", first[0].URL)
	}
}

func TestGetPage_Clamps(t *testing.T) {
	store := newTestStore(t)
	var batch []Candidate
	for i := 0; i < 25; i++ {
		batch = append(batch, Candidate{URL: fmt.Sprintf("u%02d", i), Title: "t"})
	}
	store.InsertNew(batch)

	tests := []struct {
		page, perPage int
		want          int
	}{
		{0, 10, 10},  // page below 1 reads page 1
		{-3, 10, 10}, // likewise
		{1, 0, 20},   // per-page below range falls back to default
		{1, 101, 20}, // above range too
		{1, 100, 25}, // upper bound is inclusive
		{2, 20, 5},
		{9, 20, 0},
		{math.MaxInt, 20, 0},  // far past the end stays empty
		{math.MaxInt, 100, 0}, // at any page size
	}
	for _, tt := range tests {
		page, err := store.GetPage(tt.page, tt.perPage)
		if err != nil {
			t.Fatalf("GetPage(%d, %d) failed: %v", tt.page, tt.perPage, err)
		}
		if len(page) != tt.want {
			t.Errorf("GetPage(%d, %d) returned %d, want %d", tt.page, tt.perPage, len(page), tt.want)
		}
	}
}

func TestClampPage_LargePage(t *testing.T) {
	for _, perPage := range []int{1, 20, 100} {
		page, pp := ClampPage(math.MaxInt, perPage)
		if offset := (page - 1) * pp; offset < 0 {
			t.Errorf("ClampPage(MaxInt, %d) gives negative offset %d", perPage, offset)
		}
	}
}

func TestFind_Missing(t *testing.T) {
	store := newTestStore(t)
	a, err := store.Find("https://example.com/news/none")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if a != nil {
		t.Errorf("expected nil for unknown url, got %+v", a)
	}
}

func TestMissingDatesAndSetPublishedAt(t *testing.T) {
	store := newTestStore(t)
	pub := date(2024, 2, 2)
	store.InsertNew([]Candidate{
		{URL: "dated", Title: "d", PublishedAt: &pub},
		{URL: "undated-1", Title: "u1"},
		{URL: "undated-2", Title: "u2"},
	})

	missing, err := store.MissingDates()
	if err != nil {
		t.Fatalf("MissingDates failed: %v", err)
	}
	if len(missing) != 2 {
		t.Fatalf("expected 2 undated, got %v", missing)
	}

	set := date(2024, 5, 5)
	if err := store.SetPublishedAt("undated-1", set); err != nil {
		t.Fatalf("SetPublishedAt failed: %v", err)
	}
	// Repeating is harmless.
	if err := store.SetPublishedAt("undated-1", set); err != nil {
		t.Fatalf("second SetPublishedAt failed: %v", err)
	}

	missing, _ = store.MissingDates()
	if len(missing) != 1 || missing[0] != "undated-2" {
		t.Errorf("expected only undated-2 left, got %v", missing)
	}

	a, _ := store.Find("undated-1")
	if a.PublishedAt == nil || !a.PublishedAt.Equal(set) {
		t.Errorf("published_at = %v, want %v", a.PublishedAt, set)
	}
}

func TestSummaryRoundTrip(t *testing.T) {
	store := newTestStore(t)
	store.InsertNew([]Candidate{{URL: "https://example.com/news/1", Title: "기도회"}})

	sum := &Summary{
		ArticleURL:  "https://example.com/news/1",
		Summary:     "요약",
		Keywords:    []string{"기도", "은혜"},
		BibleVerses: []string{"시편 1:1"},
	}
	if err := store.SaveSummary(sum); err != nil {
		t.Fatalf("SaveSummary failed: %v", err)
	}

	got, err := store.GetSummary("https://example.com/news/1")
	if err != nil {
		t.Fatalf("GetSummary failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected summary, got nil")
	}
	if fmt.Sprint(got.Keywords) != "[기도 은혜]" {
		t.Errorf("keywords = %v", got.Keywords)
	}
	if len(got.BibleVerses) != 1 || got.BibleVerses[0] != "시편 1:1" {
		t.Errorf("bible verses = %v", got.BibleVerses)
	}
}

func TestSaveSummary_ReplacesExisting(t *testing.T) {
	store := newTestStore(t)
	store.InsertNew([]Candidate{{URL: "u", Title: "t"}})

	store.now = func() time.Time { return date(2024, 1, 1) }
	if err := store.SaveSummary(&Summary{ArticleURL: "u", Summary: "first"}); err != nil {
		t.Fatalf("SaveSummary failed: %v", err)
	}
	store.now = func() time.Time { return date(2024, 2, 1) }
	if err := store.SaveSummary(&Summary{ArticleURL: "u", Summary: "second"}); err != nil {
		t.Fatalf("SaveSummary failed: %v", err)
	}

	var rows int
	store.db.QueryRow("SELECT COUNT(*) FROM article_summaries").Scan(&rows)
	if rows != 1 {
		t.Errorf("expected 1 summary row, got %d", rows)
	}

	got, _ := store.GetSummary("u")
	if got.Summary != "second" {
		t.Errorf("summary = %q, want second", got.Summary)
	}
	if !got.CreatedAt.Equal(date(2024, 2, 1)) {
		t.Errorf("created_at = %v, want regeneration time", got.CreatedAt)
	}
	if got.Keywords == nil || len(got.Keywords) != 0 {
		t.Errorf("nil keywords should read back as empty list, got %#v", got.Keywords)
	}
}

func TestSaveSummary_RequiresArticle(t *testing.T) {
	store := newTestStore(t)
	if err := store.SaveSummary(&Summary{ArticleURL: "https://example.com/news/ghost", Summary: "x"}); err == nil {
		t.Error("expected foreign key violation for unknown article")
	}
}

func TestGetSummary_CorruptListsDecodeEmpty(t *testing.T) {
	store := newTestStore(t)
	store.InsertNew([]Candidate{{URL: "u", Title: "t"}})
	if _, err := store.db.Exec(`INSERT INTO article_summaries (article_url, summary, keywords, bible_verses)
		VALUES ('u', 's', 'not json', '{"a":1}')`); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	got, err := store.GetSummary("u")
	if err != nil {
		t.Fatalf("GetSummary failed: %v", err)
	}
	if len(got.Keywords) != 0 || len(got.BibleVerses) != 0 {
		t.Errorf("expected empty lists, got %v / %v", got.Keywords, got.BibleVerses)
	}
}

func TestListSummaries(t *testing.T) {
	store := newTestStore(t)
	store.InsertNew([]Candidate{{URL: "a", Title: "Alpha"}, {URL: "b", Title: "Beta"}})

	store.now = func() time.Time { return date(2024, 1, 1) }
	store.SaveSummary(&Summary{ArticleURL: "a", Summary: "sa"})
	store.now = func() time.Time { return date(2024, 1, 2) }
	store.SaveSummary(&Summary{ArticleURL: "b", Summary: "sb"})

	list, err := store.ListSummaries(10)
	if err != nil {
		t.Fatalf("ListSummaries failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(list))
	}
	if list[0].ArticleURL != "b" || list[0].Title != "Beta" {
		t.Errorf("expected newest summary first with its title, got %+v", list[0])
	}
}

func TestLastCreatedAt(t *testing.T) {
	store := newTestStore(t)
	last, err := store.LastCreatedAt()
	if err != nil {
		t.Fatalf("LastCreatedAt failed: %v", err)
	}
	if last != nil {
		t.Errorf("expected nil on empty store, got %v", last)
	}

	store.now = func() time.Time { return date(2024, 3, 3) }
	store.InsertNew([]Candidate{{URL: "u", Title: "t"}})
	last, _ = store.LastCreatedAt()
	if last == nil || !last.Equal(date(2024, 3, 3)) {
		t.Errorf("LastCreatedAt = %v", last)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig on missing file failed: %v", err)
	}
	if cfg.Summaries.RepopulateInterval != 5*time.Second {
		t.Errorf("default repopulate interval = %v", cfg.Summaries.RepopulateInterval)
	}

	yamlPath := filepath.Join(dir, "config.yaml")
	os.WriteFile(yamlPath, []byte("database:\n  path: /tmp/x.db\nsummaries:\n  repopulate_interval: 2s\n"), 0644)
	cfg, err = LoadConfig(yamlPath)
	if err != nil {
		t.Fatalf("LoadConfig yaml failed: %v", err)
	}
	if cfg.Database.Path != "/tmp/x.db" {
		t.Errorf("database path = %q", cfg.Database.Path)
	}
	if cfg.Summaries.RepopulateInterval != 2*time.Second {
		t.Errorf("repopulate interval = %v", cfg.Summaries.RepopulateInterval)
	}
	if cfg.Ollama.Model != "gemma3:4b" {
		t.Errorf("unset fields should keep defaults, got model %q", cfg.Ollama.Model)
	}

	tomlPath := filepath.Join(dir, "config.toml")
	os.WriteFile(tomlPath, []byte("[ollama]\nmodel = \"llama3\"\n\n[summaries]\ntop_limit = 7\n"), 0644)
	cfg, err = LoadConfig(tomlPath)
	if err != nil {
		t.Fatalf("LoadConfig toml failed: %v", err)
	}
	if cfg.Ollama.Model != "llama3" || cfg.Summaries.TopLimit != 7 {
		t.Errorf("toml values not applied: model=%q top=%d", cfg.Ollama.Model, cfg.Summaries.TopLimit)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Web.Addr = ":9999"
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Web.Addr != ":9999" {
		t.Errorf("addr = %q", loaded.Web.Addr)
	}
	if loaded.Source.ContentTimeout != 15*time.Second {
		t.Errorf("content timeout = %v", loaded.Source.ContentTimeout)
	}
}
