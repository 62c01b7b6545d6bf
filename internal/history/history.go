// Package history keeps asked questions in SQLite and reports the popular
// ones.
package history

import "time"

// DefaultRetention is how long entries are kept by Prune.
const DefaultRetention = 30 * 24 * time.Hour

// Result sizes.
const (
	DefaultPopularLimit = 5
	StatsTopLimit       = 10
)

// DefaultPopular is suggested before any question has been asked.
var DefaultPopular = []string{
	"거래선 등록 방법",
	"미팅메모 작성하는 방법",
	"주문 승인 프로세스",
	"연락처 관리 방법",
	"계약 정보 입력",
}

// Entry is one asked question.
type Entry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Query       string    `json:"query"`
	Normalized  string    `json:"normalized"`
	Language    string    `json:"language"`
	ResultCount int       `json:"result_count"`
	TopScore    float64   `json:"top_score"`
	Answered    bool      `json:"answered"`
}

// PopularQuery is a question with the number of times it was asked.
type PopularQuery struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

// Stats summarises the history.
type Stats struct {
	LastUpdated   string         `json:"last_updated"`
	TotalQueries  int            `json:"total_queries"`
	UniqueQueries int            `json:"unique_queries"`
	Answered      int            `json:"answered"`
	ByLanguage    map[string]int `json:"by_language"`
	TopQueries    []PopularQuery `json:"top_queries"`
}
