package chunker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func baseMetadata() Metadata {
	var md Metadata
	md.Set(KeyDocumentID, "crm_account_ko_v1_0")
	md.Set(KeyType, "account_contact")
	md.Set(KeyLanguage, "korean")
	md.Set(KeyVersion, "1.0")
	md.Set(KeySourceFile, "manual.pdf")
	return md
}

func manualText() string {
	var b strings.Builder
	b.WriteString("이 문서는 CRM 사용 방법을 설명합니다.\n\n")
	for i := 1; i <= 6; i++ {
		fmt.Fprintf(&b, "%d. 거래선 관리 %d\n", i, i)
		for j := 0; j < 40; j++ {
			fmt.Fprintf(&b, "거래선 등록 화면에서 필수 항목을 입력합니다 %d-%d. ", i, j)
			if j%10 == 9 {
				b.WriteString("\n\n")
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func TestChunkDocument_ShortTextIsDropped(t *testing.T) {
	text := strings.Repeat("가", 50)
	c := New(WithMinChunkSize(100))

	for _, s := range Strategies {
		t.Run(s.String(), func(t *testing.T) {
			chunks, err := c.ChunkDocument(text, baseMetadata(), s)
			if err != nil {
				t.Fatalf("ChunkDocument: %v", err)
			}
			if len(chunks) != 0 {
				t.Errorf("got %d chunks, want 0", len(chunks))
			}
		})
	}
}

func TestChunkDocument_Properties(t *testing.T) {
	text := manualText()
	c := New(WithChunkSize(300), WithChunkOverlap(60), WithMinChunkSize(50), WithMaxChunkSize(600))

	for _, s := range Strategies {
		t.Run(s.String(), func(t *testing.T) {
			chunks, err := c.ChunkDocument(text, baseMetadata(), s)
			if err != nil {
				t.Fatalf("ChunkDocument: %v", err)
			}
			if len(chunks) == 0 {
				t.Fatal("expected chunks")
			}
			seen := make(map[string]bool)
			for i, ch := range chunks {
				want := fmt.Sprintf("crm_account_ko_v1_0_chunk_%04d", i)
				if ch.ChunkID != want {
					t.Errorf("chunk %d id = %q, want %q", i, ch.ChunkID, want)
				}
				if seen[ch.ChunkID] {
					t.Errorf("duplicate id %q", ch.ChunkID)
				}
				seen[ch.ChunkID] = true
				if idx, ok := ch.Metadata.Int(KeyChunkIndex); !ok || idx != i {
					t.Errorf("chunk %d chunk_index = %v", i, idx)
				}
				if ch.CharCount < 50 {
					t.Errorf("chunk %d char_count %d below minimum", i, ch.CharCount)
				}
				if ch.CharCount != len([]rune(ch.Text)) {
					t.Errorf("chunk %d char_count %d != rune count", i, ch.CharCount)
				}
				for _, k := range RequiredKeys {
					if !ch.Metadata.Has(k) {
						t.Errorf("chunk %d missing %s", i, k)
					}
				}
			}
		})
	}
}

func TestChunkDocument_InvalidStrategy(t *testing.T) {
	c := New()
	_, err := c.ChunkDocument("some text", baseMetadata(), Strategy(99))
	if !errors.Is(err, ErrInvalidStrategy) {
		t.Fatalf("expected ErrInvalidStrategy, got %v", err)
	}

	if _, err := ParseStrategy("paragraph"); !errors.Is(err, ErrInvalidStrategy) {
		t.Errorf("ParseStrategy(paragraph) err = %v", err)
	}
	for _, name := range StrategyNames() {
		s, err := ParseStrategy(strings.ToUpper(name))
		if err != nil {
			t.Errorf("ParseStrategy(%q): %v", name, err)
		}
		if s.String() != name {
			t.Errorf("round trip %q -> %q", name, s.String())
		}
	}
}

func TestChunkDocument_MissingMetadata(t *testing.T) {
	var md Metadata
	md.Set(KeyDocumentID, "doc")
	_, err := New().ChunkDocument(strings.Repeat("a", 500), md, Fixed)
	if !errors.Is(err, ErrMissingMetadata) {
		t.Fatalf("expected ErrMissingMetadata, got %v", err)
	}
}

func TestFixedWindows(t *testing.T) {
	text := strings.Repeat("abcdefghij", 25)
	c := New(WithChunkSize(100), WithChunkOverlap(20), WithMinChunkSize(10))

	chunks, err := c.ChunkDocument(text, baseMetadata(), Fixed)
	if err != nil {
		t.Fatalf("ChunkDocument: %v", err)
	}
	// The last window lies inside the previous overlap and is still emitted.
	wantStarts := []int{0, 80, 160, 240}
	wantEnds := []int{100, 180, 250, 250}
	if len(chunks) != len(wantStarts) {
		t.Fatalf("got %d chunks, want %d", len(chunks), len(wantStarts))
	}
	for i, ch := range chunks {
		start, _ := ch.Metadata.Int(KeyChunkStart)
		end, _ := ch.Metadata.Int(KeyChunkEnd)
		if start != wantStarts[i] || end != wantEnds[i] {
			t.Errorf("chunk %d span = [%d,%d), want [%d,%d)", i, start, end, wantStarts[i], wantEnds[i])
		}
		if ch.Text != text[start:end] {
			t.Errorf("chunk %d text does not match its span", i)
		}
	}
}

func split(t *testing.T, chunkSize, overlap int, text string, separators ...string) []string {
	t.Helper()
	s, err := NewRecursiveSplitter(chunkSize, overlap, separators...)
	if err != nil {
		t.Fatalf("NewRecursiveSplitter: %v", err)
	}
	got, err := s.Split(context.Background(), text)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	return got
}

func TestRecursiveSplitter_Overlap(t *testing.T) {
	got := split(t, 10, 5, "aaaa bbbb cccc dddd")
	want := []string{"aaaa bbbb", "bbbb cccc", "cccc dddd"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Split = %q, want %q", got, want)
	}
}

func TestRecursiveSplitter_PrefersCoarseSeparators(t *testing.T) {
	text := "first paragraph here\n\nsecond paragraph here"
	got := split(t, 25, 0, text)
	want := []string{"first paragraph here", "second paragraph here"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Split = %q, want %q", got, want)
	}
}

// The reference case of the langchain recursive character splitter.
func TestRecursiveSplitter_LangchainReference(t *testing.T) {
	text := "Hi.\n\nI'm Harrison.\n\nHow? Are? You?\nOkay then f f f f.\n" +
		"This is a weird text to write, but gotta test the splittingggg some how.\n\n" +
		"Bye!\n\n-H."
	got := split(t, 10, 1, text, "\n\n", "\n", " ", "")
	want := []string{
		"Hi.", "I'm", "Harrison.", "How? Are?", "You?", "Okay then", "f f f f.",
		"This is a", "weird", "text to", "write,", "but gotta", "test the",
		"splitting", "gggg", "some how.", "Bye!", "-H.",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Split = %q\nwant    %q", got, want)
	}
}

func TestRecursiveSplitter_InvalidConfig(t *testing.T) {
	if _, err := NewRecursiveSplitter(0, 0); err == nil {
		t.Error("expected error for zero chunk size")
	}
	if _, err := NewRecursiveSplitter(10, -1); err == nil {
		t.Error("expected error for negative overlap")
	}
}

func TestFixedMatchesDefaultWindowing(t *testing.T) {
	chunks, err := New().ChunkDocument(strings.Repeat("가", 1000), baseMetadata(), Fixed)
	if err != nil {
		t.Fatal(err)
	}
	// Windows start at 0 and 800; the second holds the 200-rune overlap.
	if len(chunks) != 2 || chunks[1].CharCount != 200 {
		t.Fatalf("got %d chunks", len(chunks))
	}
}

func TestSemanticSections(t *testing.T) {
	text := "Overview of the manual.\n# Setup\nInstall the client.\n# Usage\nOpen the account screen."
	c := New(WithMinChunkSize(1))

	chunks, err := c.ChunkDocument(text, baseMetadata(), Semantic)
	if err != nil {
		t.Fatalf("ChunkDocument: %v", err)
	}
	wantTitles := []string{"Document", "# Setup", "# Usage"}
	wantTexts := []string{"Overview of the manual.", "Install the client.", "Open the account screen."}
	if len(chunks) != len(wantTitles) {
		t.Fatalf("got %d chunks, want %d", len(chunks), len(wantTitles))
	}
	for i, ch := range chunks {
		if got := ch.Metadata.String(KeySectionTitle); got != wantTitles[i] {
			t.Errorf("chunk %d section_title = %q, want %q", i, got, wantTitles[i])
		}
		if ch.Text != wantTexts[i] {
			t.Errorf("chunk %d text = %q, want %q", i, ch.Text, wantTexts[i])
		}
	}
}

func TestSemanticOversizeSection(t *testing.T) {
	body := strings.Repeat("alpha beta gamma delta ", 20)
	text := "제1장 개요\n" + body
	c := New(WithChunkSize(60), WithChunkOverlap(10), WithMinChunkSize(5), WithMaxChunkSize(100))

	chunks, err := c.ChunkDocument(text, baseMetadata(), Semantic)
	if err != nil {
		t.Fatalf("ChunkDocument: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected the section to be split, got %d chunks", len(chunks))
	}
	for i, ch := range chunks {
		if got := ch.Metadata.String(KeySectionTitle); got != "제1장 개요" {
			t.Errorf("chunk %d section_title = %q", i, got)
		}
		if ch.CharCount > 60 {
			t.Errorf("chunk %d has %d runes, want <= 60", i, ch.CharCount)
		}
	}
}

func TestTokenWindows(t *testing.T) {
	words := make([]string, 300)
	for i := range words {
		words[i] = fmt.Sprintf("w%03d", i)
	}
	text := strings.Join(words, " ")
	c := New(WithChunkSize(400), WithChunkOverlap(80), WithMinChunkSize(10))

	chunks, err := c.ChunkDocument(text, baseMetadata(), Token)
	if err != nil {
		t.Fatalf("ChunkDocument: %v", err)
	}
	if len(chunks) != 4 {
		t.Fatalf("got %d chunks, want 4", len(chunks))
	}
	first := strings.Fields(chunks[0].Text)
	second := strings.Fields(chunks[1].Text)
	if len(first) != 100 {
		t.Errorf("first window has %d words, want 100", len(first))
	}
	if !reflect.DeepEqual(first[80:], second[:20]) {
		t.Errorf("windows do not overlap by 20 words")
	}
	if second[0] != "w080" {
		t.Errorf("second window starts at %q, want w080", second[0])
	}
}

func TestChunkWithContext(t *testing.T) {
	text := strings.Repeat("abcdefghij", 30)
	c := New(WithChunkSize(100), WithChunkOverlap(0), WithMinChunkSize(10))

	chunks, err := c.ChunkWithContext(text, baseMetadata(), Fixed, true)
	if err != nil {
		t.Fatalf("ChunkWithContext: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}

	first := chunks[0].Metadata.String(KeyContext)
	if !strings.HasPrefix(first, "[다음 내용: ") || strings.Contains(first, "이전") {
		t.Errorf("first context = %q", first)
	}
	middle := chunks[1].Metadata.String(KeyContext)
	if parts := strings.Split(middle, "\n"); len(parts) != 2 {
		t.Errorf("middle context = %q, want both sides", middle)
	}
	last := chunks[2].Metadata.String(KeyContext)
	if !strings.HasPrefix(last, "[이전 내용: ...") || strings.Contains(last, "다음") {
		t.Errorf("last context = %q", last)
	}
	for i, ch := range chunks {
		if ch.CharCount != 100 {
			t.Errorf("chunk %d text changed: %d runes", i, ch.CharCount)
		}
	}

	single, err := c.ChunkWithContext(strings.Repeat("x", 50), baseMetadata(), Fixed, true)
	if err != nil {
		t.Fatalf("ChunkWithContext: %v", err)
	}
	if len(single) != 1 || single[0].Metadata.Has(KeyContext) {
		t.Errorf("single chunk should not get context")
	}
}

func TestChunkTable(t *testing.T) {
	md := baseMetadata()
	md.Set(KeyPage, 3)
	md.Set(KeyTableIndex, 1)

	grid := [][]string{{"항목", "설명"}, {"거래선명", "회사 이름"}}
	ch, err := ChunkTable(grid, "필수 항목", md)
	if err != nil {
		t.Fatalf("ChunkTable: %v", err)
	}
	if ch.ChunkID != "crm_account_ko_v1_0_p3_table1" {
		t.Errorf("ChunkID = %q", ch.ChunkID)
	}
	wantText := "**필수 항목**\n\n| 항목 | 설명 |\n|---|---|\n| 거래선명 | 회사 이름 |\n"
	if ch.Text != wantText {
		t.Errorf("Text = %q, want %q", ch.Text, wantText)
	}
	if ch.Metadata.String(KeyContentType) != ContentTypeTable {
		t.Errorf("content_type = %q", ch.Metadata.String(KeyContentType))
	}
	if rows, _ := ch.Metadata.Int(KeyTableRows); rows != 2 {
		t.Errorf("table_rows = %d", rows)
	}
	if cols, _ := ch.Metadata.Int(KeyTableCols); cols != 2 {
		t.Errorf("table_cols = %d", cols)
	}

	empty, err := ChunkTable(nil, "빈 표 캡션", baseMetadata())
	if err != nil {
		t.Fatalf("ChunkTable: %v", err)
	}
	if empty.Text != "**빈 표 캡션**\n(빈 표)" {
		t.Errorf("empty table text = %q", empty.Text)
	}
	if empty.ChunkID != "crm_account_ko_v1_0_p0_table0" {
		t.Errorf("empty table id = %q", empty.ChunkID)
	}
}

func TestSaveLoadChunks(t *testing.T) {
	dir := t.TempDir()
	c := New(WithChunkSize(100), WithChunkOverlap(20), WithMinChunkSize(10))
	text := strings.Repeat("<b>거래선</b> & 연락처 ", 30)

	chunks, err := c.ChunkWithContext(text, baseMetadata(), Fixed, true)
	if err != nil {
		t.Fatalf("ChunkWithContext: %v", err)
	}
	path, err := SaveChunks(dir, "crm_account_ko_v1_0", chunks)
	if err != nil {
		t.Fatalf("SaveChunks: %v", err)
	}
	if filepath.Base(path) != "crm_account_ko_v1_0_chunks.json" {
		t.Errorf("path = %s", path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "<b>거래선</b> &") {
		t.Error("chunk file escapes HTML characters")
	}
	if !strings.Contains(string(raw), `"document_id": "crm_account_ko_v1_0"`) {
		t.Error("chunk file metadata not in expected form")
	}

	loaded, err := LoadChunks(path)
	if err != nil {
		t.Fatalf("LoadChunks: %v", err)
	}
	if !reflect.DeepEqual(loaded, chunks) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", loaded[0], chunks[0])
	}

	if _, err := SaveChunks(dir, "crm_meeting_ko_v1_0", chunks[:1]); err != nil {
		t.Fatalf("SaveChunks: %v", err)
	}
	all, err := LoadChunkDir(dir)
	if err != nil {
		t.Fatalf("LoadChunkDir: %v", err)
	}
	if len(all) != 2 || len(all["crm_meeting_ko_v1_0"]) != 1 {
		t.Errorf("LoadChunkDir = %d documents", len(all))
	}
}

func TestMetadataOrder(t *testing.T) {
	md := baseMetadata()
	md.Set(KeyChunkIndex, 0)
	md.Set(KeyType, "meeting_memo")

	got, err := md.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	want := `{"document_id":"crm_account_ko_v1_0","type":"meeting_memo","language":"korean","version":"1.0","source_file":"manual.pdf","chunk_index":0}`
	if string(got) != want {
		t.Errorf("MarshalJSON = %s, want %s", got, want)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"가나다라", 2},
		{"abcdefgh", 2},
		{"가나abcd", 2},
		{"abc", 0},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestOptimalChunkSize(t *testing.T) {
	tests := []struct {
		length   int
		language string
		want     int
	}{
		{1000, "korean", 500},
		{50000, "korean", 1000},
		{200000, "korean", 1500},
		{50000, "english", 1500},
		{200000, "english", 2250},
	}
	for _, tt := range tests {
		if got := OptimalChunkSize(tt.length, tt.language); got != tt.want {
			t.Errorf("OptimalChunkSize(%d, %s) = %d, want %d", tt.length, tt.language, got, tt.want)
		}
	}
}
