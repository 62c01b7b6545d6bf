package rag

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/ziadkadry99/crm-manual-rag/internal/chunker"
	"github.com/ziadkadry99/crm-manual-rag/internal/history"
	"github.com/ziadkadry99/crm-manual-rag/internal/llm"
	"github.com/ziadkadry99/crm-manual-rag/internal/logger"
	"github.com/ziadkadry99/crm-manual-rag/internal/router"
	"github.com/ziadkadry99/crm-manual-rag/internal/vectordb"
)

const dims = 4

// fixedEmbedder returns the vector registered for a text, or the query axis.
type fixedEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := f.vectors[t]; ok {
			out[i] = v
			continue
		}
		out[i] = []float32{1, 0, 0, 0}
	}
	return out, nil
}

func (f *fixedEmbedder) Dimensions() int { return dims }
func (f *fixedEmbedder) Name() string    { return "fixed" }

type mockProvider struct {
	mu      sync.Mutex
	calls   []llm.CompletionRequest
	content string
	err     error
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if m.err != nil {
		return nil, m.err
	}
	return &llm.CompletionResponse{Content: m.content, InputTokens: 120, OutputTokens: 30, Model: "gpt-4-0613"}, nil
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// streamingProvider splits its answer into words.
type streamingProvider struct {
	mockProvider
}

func (s *streamingProvider) Stream(ctx context.Context, req llm.CompletionRequest, onDelta llm.DeltaFunc) (*llm.CompletionResponse, error) {
	resp, err := s.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	for _, w := range strings.SplitAfter(resp.Content, " ") {
		if err := onDelta(w); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

type memoryRecorder struct {
	entries []history.Entry
}

func (m *memoryRecorder) Record(_ context.Context, e history.Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

type seed struct {
	docType, language string
	idx               int
	vec               []float32
}

// newCorpus fills the ko partitions with points at known cosine scores
// against the query axis, plus one perfect english hit.
func newCorpus(t *testing.T) *router.Router {
	t.Helper()
	store, err := vectordb.NewChromemStore("")
	if err != nil {
		t.Fatal(err)
	}
	r := router.New(store)
	ctx := context.Background()
	if err := r.InitializeCollections(ctx, dims, false); err != nil {
		t.Fatal(err)
	}

	seeds := []seed{
		{"account_contact", "korean", 0, []float32{1, 0, 0, 0}},        // 1.0
		{"account_contact", "korean", 1, []float32{0.9, 0.1, 0, 0}},    // 0.994
		{"account_contact", "korean", 2, []float32{0.8, 0.6, 0, 0}},    // 0.8
		{"account_contact", "korean", 3, []float32{0.7, 0.71, 0, 0}},   // 0.702
		{"meeting_memo", "korean", 0, []float32{0.95, 0.3, 0, 0}},      // 0.954
		{"meeting_memo", "korean", 1, []float32{0, 1, 0, 0}},           // 0
		{"order_fulfillment", "korean", 0, []float32{0.85, 0.5, 0, 0}}, // 0.862
		{"order_fulfillment", "korean", 1, []float32{0.6, 0.8, 0, 0}},  // 0.6
		{"common_master", "korean", 0, []float32{0.75, 0.66, 0, 0}},    // 0.751
		{"account_contact", "english", 0, []float32{1, 0, 0, 0}},
	}
	for _, s := range seeds {
		docID := "crm_" + r.TypeCode(s.docType) + "_" + r.LanguageCode(s.language) + "_v1_0"
		var md chunker.Metadata
		md.Set(chunker.KeyDocumentID, docID)
		md.Set(chunker.KeyType, s.docType)
		md.Set(chunker.KeyLanguage, s.language)
		md.Set(chunker.KeyVersion, "1.0")
		md.Set(chunker.KeySourceFile, docID+".pdf")
		md.Set(chunker.KeyChunkIndex, s.idx)
		p := vectordb.Point{
			ChunkID:   chunker.ChunkID(docID, s.idx),
			Text:      "본문 " + chunker.ChunkID(docID, s.idx),
			Embedding: s.vec,
			Metadata:  md,
		}
		if _, err := r.AddDocumentChunks(ctx, s.docType, s.language, []vectordb.Point{p}, 0); err != nil {
			t.Fatal(err)
		}
	}
	return r
}

func chunkIDs(results []vectordb.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ChunkID
	}
	return out
}

func TestQueryProcessor(t *testing.T) {
	var qp QueryProcessor
	langs := []struct {
		text, want string
	}{
		{"거래선 등록 방법", "korean"},
		{"How do I register an account?", "english"},
		{"CRM 미팅메모", "korean"},
		{"12345 ???", "korean"},
		{"", "korean"},
	}
	for _, tt := range langs {
		if got := qp.DetectLanguage(tt.text); got != tt.want {
			t.Errorf("DetectLanguage(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}

	if qp.LanguageCode("korean") != "ko" || qp.LanguageCode("english") != "en" || qp.LanguageCode("japanese") != "en" {
		t.Error("LanguageCode mapping")
	}

	if got := qp.Optimize("  주문   승인은\t어떻게 하나요?! "); got != "주문 승인은 어떻게 하나요" {
		t.Errorf("Optimize = %q", got)
	}

	if got := qp.Keywords("How to register the Account", "english"); !reflect.DeepEqual(got, []string{"register", "Account"}) {
		t.Errorf("english keywords = %q", got)
	}
	if got := qp.Keywords("거래선 의 등록 방법", "korean"); !reflect.DeepEqual(got, []string{"거래선", "등록", "방법"}) {
		t.Errorf("korean keywords = %q", got)
	}
}

func TestRetrieve_KoreanQuery(t *testing.T) {
	r := NewRetriever(&fixedEmbedder{}, newCorpus(t), DefaultPolicy())

	ret, err := r.Retrieve(context.Background(), "거래선 등록 방법")
	if err != nil {
		t.Fatal(err)
	}
	if ret.Language != "korean" || ret.LanguageCode != "ko" {
		t.Errorf("language = %s/%s", ret.Language, ret.LanguageCode)
	}

	want := []string{
		"crm_account_ko_v1_0_chunk_0000",
		"crm_account_ko_v1_0_chunk_0001",
		"crm_meeting_ko_v1_0_chunk_0000",
		"crm_order_ko_v1_0_chunk_0000",
		"crm_account_ko_v1_0_chunk_0002",
	}
	if got := chunkIDs(ret.Results); !reflect.DeepEqual(got, want) {
		t.Fatalf("results = %q\nwant %q", got, want)
	}
	for i, res := range ret.Results {
		if res.Score < 0.5 {
			t.Errorf("result %d scored %f below threshold", i, res.Score)
		}
		if i > 0 && res.Score > ret.Results[i-1].Score {
			t.Errorf("results not sorted at %d", i)
		}
		if !strings.HasSuffix(res.Metadata.String(router.MetadataCollection), "_ko") {
			t.Errorf("result %d from %s", i, res.Metadata.String(router.MetadataCollection))
		}
	}
}

func TestRetrieve_EnglishQuery(t *testing.T) {
	r := NewRetriever(&fixedEmbedder{}, newCorpus(t), DefaultPolicy())

	ret, err := r.Retrieve(context.Background(), "How do I add a contact?")
	if err != nil {
		t.Fatal(err)
	}
	if got := chunkIDs(ret.Results); !reflect.DeepEqual(got, []string{"crm_account_en_v1_0_chunk_0000"}) {
		t.Errorf("results = %q", got)
	}
}

func TestRetrieve_Errors(t *testing.T) {
	corpus := newCorpus(t)
	if _, err := NewRetriever(&fixedEmbedder{}, corpus, DefaultPolicy()).Retrieve(context.Background(), "  "); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("blank query err = %v", err)
	}

	boom := errors.New("provider down")
	_, err := NewRetriever(&fixedEmbedder{err: boom}, corpus, DefaultPolicy()).Retrieve(context.Background(), "질문")
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestRetrieve_NoHits(t *testing.T) {
	emb := &fixedEmbedder{vectors: map[string][]float32{"무관한 질문": {0, 0, 0, 1}}}
	ret, err := NewRetriever(emb, newCorpus(t), DefaultPolicy()).Retrieve(context.Background(), "무관한 질문")
	if err != nil {
		t.Fatal(err)
	}
	if len(ret.Results) != 0 {
		t.Errorf("expected no results, got %q", chunkIDs(ret.Results))
	}
}

func TestNewRetriever_ThresholdUsedAsGiven(t *testing.T) {
	corpus := newCorpus(t)
	emb := &fixedEmbedder{vectors: map[string][]float32{"무관한 질문": {0, 0, 0, 1}}}

	r := NewRetriever(emb, corpus, Policy{})
	if got, want := r.Policy(), (Policy{PerCollectionTopK: 3, FinalTopK: 5}); got != want {
		t.Errorf("policy = %+v, want %+v", got, want)
	}
	ret, err := r.Retrieve(context.Background(), "무관한 질문")
	if err != nil {
		t.Fatal(err)
	}
	if len(ret.Results) != 5 {
		t.Errorf("zero threshold kept %d results, want 5", len(ret.Results))
	}

	if got := NewRetriever(emb, corpus, DefaultPolicy()).Policy().ScoreThreshold; got != 0.5 {
		t.Errorf("default threshold = %v", got)
	}
}

func sampleResults() []vectordb.SearchResult {
	var md chunker.Metadata
	md.Set(chunker.KeyDocumentID, "crm_account_ko_v1_0")
	md.Set(chunker.KeyType, "account_contact")
	md.Set(chunker.KeyLanguage, "korean")
	return []vectordb.SearchResult{
		{ChunkID: "crm_account_ko_v1_0_chunk_0000", Text: "거래선 등록은 거래선 메뉴에서 합니다.", Score: 0.91, Metadata: md},
		{ChunkID: "orphan_chunk_0000", Text: strings.Repeat("가", 250), Score: 0.62},
	}
}

func TestFormatContext(t *testing.T) {
	ko := FormatContext(sampleResults(), "korean")
	for _, want := range []string{
		"[문서 1]\n출처: account_contact - crm_account_ko_v1_0\n내용:\n거래선 등록은",
		"[문서 2]\n출처: Unknown - Unknown",
		"---",
	} {
		if !strings.Contains(ko, want) {
			t.Errorf("korean context missing %q:\n%s", want, ko)
		}
	}

	en := UserPrompt("How?", sampleResults()[:1], "english")
	if !strings.Contains(en, "User Question: How?") || !strings.Contains(en, "[Document 1]\nSource: account_contact") {
		t.Errorf("english prompt:\n%s", en)
	}
	if !strings.HasPrefix(SystemPrompt("korean"), "당신은") || !strings.HasPrefix(SystemPrompt("english"), "You are") {
		t.Error("system prompt language")
	}
}

func TestGenerate(t *testing.T) {
	p := &mockProvider{content: "거래선 메뉴에서 등록하면 됩니다. ✅"}
	g := NewGenerator(p)

	ans, err := g.Generate(context.Background(), "거래선 등록 방법", sampleResults(), "korean")
	if err != nil {
		t.Fatal(err)
	}
	if ans.Answer != "거래선 메뉴에서 등록하면 됩니다. ✅" || ans.Model != DefaultModel {
		t.Errorf("answer = %+v", ans)
	}
	if ans.TokenUsage != (TokenUsage{Prompt: 120, Completion: 30, Total: 150}) {
		t.Errorf("usage = %+v", ans.TokenUsage)
	}
	if len(ans.Sources) != 2 {
		t.Fatalf("sources = %d", len(ans.Sources))
	}
	first := ans.Sources[0]
	if first.Index != 1 || first.DocumentID != "crm_account_ko_v1_0" || first.Type != "account_contact" || first.Language != "korean" || first.Score != 0.91 {
		t.Errorf("source 1 = %+v", first)
	}
	second := ans.Sources[1]
	if second.Index != 2 || second.DocumentID != "Unknown" {
		t.Errorf("source 2 = %+v", second)
	}
	if second.TextPreview != strings.Repeat("가", 200)+"..." {
		t.Errorf("preview has %d runes", len([]rune(second.TextPreview)))
	}

	req := p.calls[0]
	if req.Model != "gpt-4" || req.Temperature != 0.3 || req.MaxTokens != 1000 {
		t.Errorf("request = %+v", req)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != llm.RoleSystem || !strings.Contains(req.Messages[1].Content, "[문서 1]") {
		t.Errorf("messages = %+v", req.Messages)
	}
}

func TestGenerate_NoResults(t *testing.T) {
	p := &mockProvider{content: "unused"}
	g := NewGenerator(p, WithModel("gpt-4o"))

	tests := []struct {
		language, want string
	}{
		{"korean", "죄송합니다. 질문과 관련된 내용을 매뉴얼에서 찾을 수 없습니다."},
		{"english", "I'm sorry, I couldn't find relevant information in the manuals."},
	}
	for _, tt := range tests {
		ans, err := g.Generate(context.Background(), "q", nil, tt.language)
		if err != nil {
			t.Fatal(err)
		}
		if ans.Answer != tt.want || len(ans.Sources) != 0 || ans.TokenUsage.Total != 0 || ans.Model != "gpt-4o" {
			t.Errorf("%s: %+v", tt.language, ans)
		}
	}
	if p.callCount() != 0 {
		t.Errorf("model called %d times", p.callCount())
	}
}

func TestGenerate_ProviderError(t *testing.T) {
	boom := errors.New("rate limited")
	g := NewGenerator(&mockProvider{err: boom}, WithTemperature(0), WithMaxTokens(200))
	if _, err := g.Generate(context.Background(), "q", sampleResults(), "english"); !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
}

func TestStream(t *testing.T) {
	p := &streamingProvider{mockProvider{content: "one two three"}}
	g := NewGenerator(p)

	var deltas []string
	ans, err := g.Stream(context.Background(), "q", sampleResults(), "english", func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(deltas) != 3 || strings.Join(deltas, "") != ans.Answer {
		t.Errorf("deltas %q, answer %q", deltas, ans.Answer)
	}

	deltas = nil
	ans, err = g.Stream(context.Background(), "q", nil, "korean", func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(deltas) != 1 || deltas[0] != NoAnswer("korean") || ans.Answer != NoAnswer("korean") {
		t.Errorf("no-answer stream = %q", deltas)
	}
}

func TestRenderHTML(t *testing.T) {
	md := "**요약**\n\n| 항목 | 설명 |\n|---|---|\n| 거래선 | 고객사 |\n\n```go\nfmt.Println(\"hi\")\n```\n\n<script>alert(1)</script>\n"
	out, err := RenderHTML(md)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"<strong>요약</strong>", "<table>", "<td>거래선</td>", "<pre"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "<script>") {
		t.Errorf("raw html passed through:\n%s", out)
	}
}

func TestAssistant(t *testing.T) {
	corpus := newCorpus(t)
	p := &streamingProvider{mockProvider{content: "거래선 메뉴를 사용하세요."}}
	rec := &memoryRecorder{}
	a := NewAssistant(NewRetriever(&fixedEmbedder{}, corpus, DefaultPolicy()), NewGenerator(p), rec, logger.Nop())

	reply, err := a.Ask(context.Background(), "  거래선   등록 방법? ")
	if err != nil {
		t.Fatal(err)
	}
	if reply.Language != "korean" || len(reply.Sources) != 5 {
		t.Errorf("reply = %+v", reply)
	}
	if !strings.Contains(reply.HTML, "<p>거래선 메뉴를 사용하세요.</p>") {
		t.Errorf("html = %q", reply.HTML)
	}

	var streamed strings.Builder
	reply, err = a.AskStream(context.Background(), "How do I add a contact?", func(d string) error {
		streamed.WriteString(d)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if streamed.String() != reply.Answer.Answer || reply.Language != "english" {
		t.Errorf("streamed %q, reply %+v", streamed.String(), reply)
	}

	if len(rec.entries) != 2 {
		t.Fatalf("recorded %d entries", len(rec.entries))
	}
	ko, en := rec.entries[0], rec.entries[1]
	if ko.Query != "거래선 등록 방법" || ko.Language != "korean" || ko.ResultCount != 5 || !ko.Answered || ko.TopScore < 0.99 {
		t.Errorf("korean entry = %+v", ko)
	}
	if en.Query != "How do I add a contact" || en.Language != "english" || en.ResultCount != 1 {
		t.Errorf("english entry = %+v", en)
	}

	if _, err := a.Search(context.Background(), ""); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("Search err = %v", err)
	}
}
