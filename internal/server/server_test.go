package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/ziadkadry99/crm-manual-rag/internal/chunker"
	"github.com/ziadkadry99/crm-manual-rag/internal/db"
	"github.com/ziadkadry99/crm-manual-rag/internal/history"
	"github.com/ziadkadry99/crm-manual-rag/internal/llm"
	"github.com/ziadkadry99/crm-manual-rag/internal/rag"
	"github.com/ziadkadry99/crm-manual-rag/internal/router"
	"github.com/ziadkadry99/crm-manual-rag/internal/vectordb"
)

// axisEmbedder puts texts about accounts on the first axis, others on the
// last.
type axisEmbedder struct{}

func (axisEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if strings.Contains(text, "거래선") || strings.Contains(strings.ToLower(text), "account") {
			out[i] = []float32{1, 0, 0, 0}
		} else {
			out[i] = []float32{0, 0, 0, 1}
		}
	}
	return out, nil
}

func (axisEmbedder) Dimensions() int { return 4 }
func (axisEmbedder) Name() string    { return "test/axis" }

// wordProvider streams its reply one word at a time.
type wordProvider struct{ reply string }

func (p wordProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{Content: p.reply, Model: req.Model, InputTokens: 40, OutputTokens: 8}, nil
}

func (p wordProvider) Stream(_ context.Context, req llm.CompletionRequest, onDelta llm.DeltaFunc) (*llm.CompletionResponse, error) {
	words := strings.SplitAfter(p.reply, " ")
	for _, w := range words {
		if err := onDelta(w); err != nil {
			return nil, err
		}
	}
	return &llm.CompletionResponse{Content: p.reply, Model: req.Model, InputTokens: 40, OutputTokens: 8}, nil
}

func (wordProvider) Name() string { return "words" }

type fixture struct {
	srv     *Server
	history *history.Store
}

func setupTest(t *testing.T, withLLM bool) fixture {
	t.Helper()
	ctx := context.Background()

	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	store, err := vectordb.NewChromemStore("")
	if err != nil {
		t.Fatal(err)
	}
	rt := router.New(store)
	if err := rt.InitializeCollections(ctx, 4, false); err != nil {
		t.Fatal(err)
	}

	var md chunker.Metadata
	md.Set(chunker.KeyDocumentID, "account_contact_korean_v1.0")
	md.Set(chunker.KeyType, "account_contact")
	md.Set(chunker.KeyLanguage, "korean")
	points := []vectordb.Point{{
		ChunkID:   "account_contact_korean_v1.0_chunk_0000",
		Text:      "거래선 관리 메뉴에서 신규 거래선을 등록합니다.",
		Embedding: []float32{1, 0, 0, 0},
		Metadata:  md,
	}}
	if _, err := rt.AddDocumentChunks(ctx, "account_contact", "korean", points, 0); err != nil {
		t.Fatal(err)
	}

	hist := history.NewStore(database)
	deps := Deps{
		Retriever: rag.NewRetriever(axisEmbedder{}, rt, rag.DefaultPolicy()),
		Router:    rt,
		History:   hist,
	}
	if withLLM {
		gen := rag.NewGenerator(wordProvider{reply: "거래선 관리 메뉴를 사용하세요."})
		deps.Assistant = rag.NewAssistant(deps.Retriever, gen, hist, nil)
	}
	return fixture{srv: New(Config{Port: 0}, deps), history: hist}
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	f := setupTest(t, false)

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", body["status"])
	}
}

func TestCORSHeaders(t *testing.T) {
	srv := New(Config{Port: 0, AllowAll: true}, Deps{})

	req := httptest.NewRequest("OPTIONS", "/healthz", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("expected CORS Allow-Origin header")
	}
}

func TestServeIndex(t *testing.T) {
	f := setupTest(t, false)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(w, req)

	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Errorf("expected text/html content type, got %q", ct)
	}
	if !strings.Contains(w.Body.String(), "/ws/chat") {
		t.Error("page does not open the chat socket")
	}
}

func TestSearch(t *testing.T) {
	f := setupTest(t, false)

	w := post(t, f.srv.Router(), "/api/search", `{"query":"거래선 등록"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var ret rag.Retrieval
	if err := json.Unmarshal(w.Body.Bytes(), &ret); err != nil {
		t.Fatal(err)
	}
	if ret.LanguageCode != "ko" || len(ret.Results) != 1 {
		t.Fatalf("retrieval = %+v", ret)
	}
	if got := ret.Results[0].Metadata.String(router.MetadataCollection); got != "crm_account_ko" {
		t.Errorf("collection = %q", got)
	}

	if w := post(t, f.srv.Router(), "/api/search", `{"query":"  "}`); w.Code != http.StatusBadRequest {
		t.Errorf("blank query: expected 400, got %d", w.Code)
	}
	if w := post(t, f.srv.Router(), "/api/search", `not json`); w.Code != http.StatusBadRequest {
		t.Errorf("bad body: expected 400, got %d", w.Code)
	}
}

func TestAsk(t *testing.T) {
	f := setupTest(t, true)

	w := post(t, f.srv.Router(), "/api/ask", `{"query":"거래선 등록 방법은?"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var reply struct {
		Answer   string       `json:"answer"`
		HTML     string       `json:"html"`
		Language string       `json:"language"`
		Sources  []rag.Source `json:"sources"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &reply); err != nil {
		t.Fatal(err)
	}
	if reply.Answer != "거래선 관리 메뉴를 사용하세요." || reply.Language != "korean" {
		t.Errorf("reply = %+v", reply)
	}
	if len(reply.Sources) != 1 || reply.Sources[0].DocumentID != "account_contact_korean_v1.0" {
		t.Errorf("sources = %+v", reply.Sources)
	}

	entries, err := f.history.List(context.Background(), history.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Query != "거래선 등록 방법은" {
		t.Errorf("history = %+v", entries)
	}
}

func TestAskWithoutLLM(t *testing.T) {
	f := setupTest(t, false)
	w := post(t, f.srv.Router(), "/api/ask", `{"query":"거래선"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestCollections(t *testing.T) {
	f := setupTest(t, false)

	req := httptest.NewRequest(http.MethodGet, "/api/collections", nil)
	w := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(w, req)

	var body struct {
		Collections []router.CollectionStats `json:"collections"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Collections) != 8 {
		t.Fatalf("expected 8 collections, got %d", len(body.Collections))
	}
	for _, c := range body.Collections {
		want := 0
		if c.Name == "crm_account_ko" {
			want = 1
		}
		if c.PointsCount != want {
			t.Errorf("%s has %d points, want %d", c.Name, c.PointsCount, want)
		}
	}
}

func TestPopularRoute(t *testing.T) {
	f := setupTest(t, false)

	req := httptest.NewRequest(http.MethodGet, "/api/popular?n=3", nil)
	w := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(w, req)

	var popular []history.PopularQuery
	if err := json.Unmarshal(w.Body.Bytes(), &popular); err != nil {
		t.Fatal(err)
	}
	if len(popular) != 3 || popular[0].Query != history.DefaultPopular[0] {
		t.Errorf("popular = %+v", popular)
	}
}

func dial(t *testing.T, f fixture) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(f.srv.Router())
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/chat"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}
	return conn
}

func TestWebSocketAskStreams(t *testing.T) {
	conn := dial(t, setupTest(t, true))

	if err := conn.WriteJSON(chatRequest{Type: "ask", Content: "거래선 등록 방법은?"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	var streamed strings.Builder
	for {
		var resp chatResponse
		if err := conn.ReadJSON(&resp); err != nil {
			t.Fatalf("read: %v", err)
		}
		if resp.Type == "delta" {
			streamed.WriteString(resp.Content)
			continue
		}
		if resp.Type != "answer" {
			t.Fatalf("unexpected %q message: %s", resp.Type, resp.Content)
		}
		if streamed.String() != resp.Content {
			t.Errorf("deltas %q do not add up to %q", streamed.String(), resp.Content)
		}
		if !strings.HasPrefix(resp.HTML, "<p>") || len(resp.Sources) != 1 {
			t.Errorf("answer = %+v", resp)
		}
		if resp.TokenUsage == nil || resp.TokenUsage.Total != 48 {
			t.Errorf("token usage = %+v", resp.TokenUsage)
		}
		return
	}
}

func TestWebSocketSearch(t *testing.T) {
	conn := dial(t, setupTest(t, false))

	if err := conn.WriteJSON(chatRequest{Type: "search", Content: "account setup"}); err != nil {
		t.Fatal(err)
	}
	var resp chatResponse
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatal(err)
	}
	// The only indexed chunk is Korean; an English query searches the en
	// partitions.
	if resp.Type != "results" || resp.Language != "english" || len(resp.Sources) != 0 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestWebSocketErrors(t *testing.T) {
	conn := dial(t, setupTest(t, false))

	tests := []struct {
		msg  chatRequest
		want string
	}{
		{chatRequest{Type: "ask", Content: "hello"}, "LLM provider not configured"},
		{chatRequest{Type: "ask"}, "content is required"},
		{chatRequest{Type: "dance", Content: "x"}, "unknown message type"},
	}
	for _, tt := range tests {
		if err := conn.WriteJSON(tt.msg); err != nil {
			t.Fatalf("write: %v", err)
		}
		var resp chatResponse
		if err := conn.ReadJSON(&resp); err != nil {
			t.Fatalf("read: %v", err)
		}
		if resp.Type != "error" || !strings.Contains(resp.Content, tt.want) {
			t.Errorf("%+v: got %+v", tt.msg, resp)
		}
	}
}
