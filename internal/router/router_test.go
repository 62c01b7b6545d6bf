package router

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/ziadkadry99/crm-manual-rag/internal/chunker"
	"github.com/ziadkadry99/crm-manual-rag/internal/vectordb"
)

const dims = 32

func hashVector(text string) []float32 {
	vec := make([]float32, dims)
	for i, ch := range text {
		vec[(int(ch)+i)%dims] += 1.0
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

func point(docID string, idx int, text string) vectordb.Point {
	var md chunker.Metadata
	md.Set(chunker.KeyDocumentID, docID)
	md.Set(chunker.KeyType, "account_contact")
	md.Set(chunker.KeyLanguage, "korean")
	md.Set(chunker.KeyVersion, "1.0")
	md.Set(chunker.KeySourceFile, docID+".pdf")
	md.Set(chunker.KeyChunkIndex, idx)
	return vectordb.Point{ChunkID: chunker.ChunkID(docID, idx), Text: text, Embedding: hashVector(text), Metadata: md}
}

func newRouter(t *testing.T) *Router {
	t.Helper()
	store, err := vectordb.NewChromemStore("")
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}
	return New(store)
}

func TestCollectionFor(t *testing.T) {
	r := newRouter(t)
	tests := []struct {
		docType, language, want string
	}{
		{"account_contact", "korean", "crm_account_ko"},
		{"meeting_memo", "english", "crm_meeting_en"},
		{"order_fulfillment", "japanese", "crm_order_en"},
		{"common_master", "chinese", "crm_common_en"},
		{"account", "ko", "crm_account_ko"},
		{"order", "jp", "crm_order_en"},
	}
	for _, tt := range tests {
		if got := r.CollectionFor(tt.docType, tt.language); got != tt.want {
			t.Errorf("CollectionFor(%q, %q) = %q, want %q", tt.docType, tt.language, got, tt.want)
		}
	}
}

func TestInitializeCollections(t *testing.T) {
	ctx := context.Background()
	r := newRouter(t)
	if err := r.InitializeCollections(ctx, dims, false); err != nil {
		t.Fatalf("InitializeCollections: %v", err)
	}
	names, _ := r.Store().ListCollections(ctx)
	if len(names) != 8 {
		t.Fatalf("got %d collections, want 8: %v", len(names), names)
	}

	if _, err := r.AddDocumentChunks(ctx, "account_contact", "korean", []vectordb.Point{point("a", 0, "거래선 등록")}, 0); err != nil {
		t.Fatalf("AddDocumentChunks: %v", err)
	}
	if err := r.InitializeCollections(ctx, dims, false); err != nil {
		t.Fatalf("InitializeCollections again: %v", err)
	}
	stats, err := r.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats) != 8 || stats[0].Name != "crm_account_en" || stats[1].Name != "crm_account_ko" || stats[1].PointsCount != 1 {
		t.Errorf("Stats = %+v", stats)
	}

	if err := r.InitializeCollections(ctx, dims, true); err != nil {
		t.Fatalf("InitializeCollections recreate: %v", err)
	}
	info, _ := r.Store().CollectionInfo(ctx, "crm_account_ko")
	if info.PointsCount != 0 {
		t.Errorf("recreate kept %d points", info.PointsCount)
	}
}

func TestSearchAllCollections(t *testing.T) {
	ctx := context.Background()
	r := newRouter(t)

	// Only two partitions exist; the rest are skipped.
	store := r.Store()
	_ = store.CreateCollection(ctx, "crm_account_ko", dims, vectordb.Cosine, false)
	_ = store.CreateCollection(ctx, "crm_order_en", dims, vectordb.Cosine, false)

	var ko, en []vectordb.Point
	for i := 0; i < 5; i++ {
		ko = append(ko, point("ko", i, strings.Repeat("거래선 ", i+1)))
		en = append(en, point("en", i, strings.Repeat("order ", i+1)))
	}
	_ = store.AddDocuments(ctx, "crm_account_ko", ko, 0)
	_ = store.AddDocuments(ctx, "crm_order_en", en, 0)

	query := hashVector("거래선")
	all, err := r.SearchAllCollections(ctx, query, 2, "", "")
	if err != nil {
		t.Fatalf("SearchAllCollections: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("got %d results, want topK*2 = 4", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Score > all[i-1].Score {
			t.Errorf("results not sorted: %v > %v", all[i].Score, all[i-1].Score)
		}
	}

	onlyEn, err := r.SearchAllCollections(ctx, query, 3, "english", "")
	if err != nil {
		t.Fatalf("SearchAllCollections(english): %v", err)
	}
	if len(onlyEn) != 3 {
		t.Errorf("english results = %d, want 3", len(onlyEn))
	}
	for _, res := range onlyEn {
		if got := res.Metadata.String(MetadataCollection); got != "crm_order_en" {
			t.Errorf("collection = %q, want crm_order_en", got)
		}
	}

	none, err := r.SearchAllCollections(ctx, query, 3, "", "meeting")
	if err != nil || len(none) != 0 {
		t.Errorf("missing partitions = %v, %v", none, err)
	}
}

func TestSearchLanguage_KoreanQuery(t *testing.T) {
	ctx := context.Background()
	r := newRouter(t)
	if err := r.InitializeCollections(ctx, dims, false); err != nil {
		t.Fatalf("InitializeCollections: %v", err)
	}

	query := "거래선 등록 방법"
	account := []vectordb.Point{
		point("crm_account_ko_v1_0", 0, query),
		point("crm_account_ko_v1_0", 1, "거래선 등록 방법 안내"),
		point("crm_account_ko_v1_0", 2, "거래선 등록 절차와 방법"),
		point("crm_account_ko_v1_0", 3, "연락처 관리"),
	}
	meeting := []vectordb.Point{
		point("crm_meeting_ko_v1_0", 0, "미팅메모 등록 방법"),
		point("crm_meeting_ko_v1_0", 1, "거래선 미팅 등록 방법"),
		point("crm_meeting_ko_v1_0", 2, "회의록 작성"),
	}
	english := []vectordb.Point{point("crm_account_en_v1_0", 0, query)}

	for _, add := range []struct {
		docType, lang string
		points        []vectordb.Point
	}{
		{"account_contact", "korean", account},
		{"meeting_memo", "korean", meeting},
		{"account_contact", "english", english},
	} {
		if _, err := r.AddDocumentChunks(ctx, add.docType, add.lang, add.points, 0); err != nil {
			t.Fatalf("AddDocumentChunks: %v", err)
		}
	}

	results, err := r.SearchLanguage(ctx, hashVector(query), "ko", 3, 0.5, 5)
	if err != nil {
		t.Fatalf("SearchLanguage: %v", err)
	}
	if len(results) == 0 || len(results) > 5 {
		t.Fatalf("got %d results, want 1..5", len(results))
	}
	if results[0].ChunkID != "crm_account_ko_v1_0_chunk_0000" {
		t.Errorf("top result = %s", results[0].ChunkID)
	}
	for i, res := range results {
		if res.Score < 0.5 {
			t.Errorf("result %d below threshold: %v", i, res.Score)
		}
		if i > 0 && res.Score > results[i-1].Score {
			t.Errorf("results not sorted at %d", i)
		}
		switch c := res.Metadata.String(MetadataCollection); c {
		case "crm_account_ko", "crm_meeting_ko":
		default:
			t.Errorf("result %s came from %s", res.ChunkID, c)
		}
	}
}

func TestDeleteDocument(t *testing.T) {
	ctx := context.Background()
	r := newRouter(t)
	_ = r.InitializeCollections(ctx, dims, false)
	_, _ = r.AddDocumentChunks(ctx, "account", "ko", []vectordb.Point{point("a", 0, "x"), point("b", 0, "y")}, 0)

	if err := r.DeleteDocument(ctx, "account_contact", "korean", "a", "other.pdf"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if info, _ := r.Store().CollectionInfo(ctx, "crm_account_ko"); info.PointsCount != 2 {
		t.Errorf("source file filter ignored: %d points left", info.PointsCount)
	}
	if err := r.DeleteDocument(ctx, "account_contact", "korean", "a", "a.pdf"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	left, _ := r.Store().SearchByFilters(ctx, "crm_account_ko", nil, 0)
	if len(left) != 1 || left[0].ChunkID != "b_chunk_0000" {
		t.Errorf("left = %+v", left)
	}

	if err := New(r.Store()).DeleteDocument(ctx, "meeting", "jp", "a", ""); err != nil {
		t.Errorf("DeleteDocument on empty partition: %v", err)
	}
}
