package history

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/crm-manual-rag/internal/db"
)

var base = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func setupStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	s := NewStore(database)
	s.now = func() time.Time { return base }
	return s
}

func record(t *testing.T, s *Store, query, language string, at time.Time) {
	t.Helper()
	if err := s.Record(context.Background(), Entry{Query: query, Language: language, Timestamp: at, ResultCount: 3, TopScore: 0.8, Answered: true}); err != nil {
		t.Fatalf("Record(%q): %v", query, err)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  거래선   등록 방법? ", "거래선 등록 방법"},
		{"How to ADD a Contact!", "how to add a contact"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRecordAndList(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	record(t, s, "거래선 등록 방법", "korean", base.Add(-2*time.Hour))
	record(t, s, "How to add a contact", "english", base.Add(-time.Hour))
	if err := s.Record(ctx, Entry{Query: "주문 승인 프로세스", Language: "korean"}); err != nil {
		t.Fatal(err)
	}

	all, err := s.List(ctx, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d entries, want 3", len(all))
	}
	if all[0].Query != "주문 승인 프로세스" || !all[0].Timestamp.Equal(base) {
		t.Errorf("newest = %+v", all[0])
	}
	if all[0].ID == "" {
		t.Error("expected generated id")
	}
	if all[1].Normalized != "how to add a contact" || !all[1].Answered || all[1].TopScore != 0.8 {
		t.Errorf("second = %+v", all[1])
	}

	korean, err := s.List(ctx, Filter{Language: "korean", Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(korean) != 1 || korean[0].Query != "주문 승인 프로세스" {
		t.Errorf("korean = %+v", korean)
	}

	since := base.Add(-90 * time.Minute)
	recent, err := s.List(ctx, Filter{Since: &since, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].Language != "english" {
		t.Errorf("recent = %+v", recent)
	}

	if err := s.Record(ctx, Entry{Query: "   "}); err == nil {
		t.Error("expected error for empty query")
	}
}

func TestPopular(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	defaults, err := s.Popular(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(defaults) != DefaultPopularLimit || defaults[0].Query != "거래선 등록 방법" || defaults[0].Count != 0 {
		t.Errorf("defaults = %+v", defaults)
	}
	short, _ := s.Popular(ctx, 2)
	if len(short) != 2 {
		t.Errorf("defaults capped = %+v", short)
	}

	for i := 0; i < 3; i++ {
		record(t, s, "미팅메모 작성하는 방법", "korean", base.Add(-time.Duration(i)*time.Minute))
	}
	record(t, s, "미팅메모 작성하는 방법?", "korean", base)
	record(t, s, "계약 정보 입력", "korean", base)
	record(t, s, "How to add a contact", "english", base.Add(-time.Hour))
	record(t, s, "how to add a contact", "english", base.Add(-time.Hour))

	top, err := s.Popular(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 2 {
		t.Fatalf("top = %+v", top)
	}
	if top[0].Count != 4 || Normalize(top[0].Query) != "미팅메모 작성하는 방법" {
		t.Errorf("first = %+v", top[0])
	}
	if top[1].Count != 2 || Normalize(top[1].Query) != "how to add a contact" {
		t.Errorf("second = %+v", top[1])
	}
}

func TestStats(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	record(t, s, "거래선 등록 방법", "korean", base)
	record(t, s, "거래선 등록 방법", "korean", base)
	record(t, s, "How to add a contact", "english", base)
	if err := s.Record(ctx, Entry{Query: "알 수 없는 질문", Language: "korean", Timestamp: base}); err != nil {
		t.Fatal(err)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalQueries != 4 || st.UniqueQueries != 3 || st.Answered != 3 {
		t.Errorf("stats = %+v", st)
	}
	if st.ByLanguage["korean"] != 3 || st.ByLanguage["english"] != 1 {
		t.Errorf("by language = %v", st.ByLanguage)
	}
	if len(st.TopQueries) != 3 || st.TopQueries[0].Query != "거래선 등록 방법" {
		t.Errorf("top = %+v", st.TopQueries)
	}
	if st.LastUpdated != "2026-03-10 09:00:00" {
		t.Errorf("last updated = %q", st.LastUpdated)
	}
}

func TestPrune(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	record(t, s, "old", "english", base.Add(-31*24*time.Hour))
	record(t, s, "older", "english", base.Add(-60*24*time.Hour))
	record(t, s, "recent", "english", base.Add(-29*24*time.Hour))

	n, err := s.Prune(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("pruned %d, want 2", n)
	}
	left, _ := s.List(ctx, Filter{})
	if len(left) != 1 || left[0].Query != "recent" {
		t.Errorf("left = %+v", left)
	}
}

func TestRoutes(t *testing.T) {
	s := setupStore(t)
	record(t, s, "거래선 등록 방법", "korean", base)
	record(t, s, "How to add a contact", "english", base.Add(-time.Minute))

	r := chi.NewRouter()
	RegisterRoutes(r, s)

	get := func(path string, out any) {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s: status %d: %s", path, rec.Code, rec.Body.String())
		}
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
	}

	var popular []PopularQuery
	get("/api/popular?n=1", &popular)
	if len(popular) != 1 || popular[0].Count != 1 {
		t.Errorf("popular = %+v", popular)
	}

	var entries []Entry
	get("/api/history?language=english", &entries)
	if len(entries) != 1 || entries[0].Query != "How to add a contact" {
		t.Errorf("entries = %+v", entries)
	}

	var stats Stats
	get("/api/history/stats", &stats)
	if stats.TotalQueries != 2 {
		t.Errorf("stats = %+v", stats)
	}
}
