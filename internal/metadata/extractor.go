// Package metadata classifies CRM manuals by type, language and version from
// their file names and summarises their content.
package metadata

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ziadkadry99/crm-manual-rag/internal/chunker"
	"github.com/ziadkadry99/crm-manual-rag/internal/sections"
)

// Document types.
const (
	TypeAccountContact   = "account_contact"
	TypeMeetingMemo      = "meeting_memo"
	TypeOrderFulfillment = "order_fulfillment"
	TypeCommonMaster     = "common_master"
)

// Languages.
const (
	Korean   = "korean"
	English  = "english"
	Japanese = "japanese"
	Chinese  = "chinese"
)

// DefaultVersion is used when a file name carries no version.
const DefaultVersion = "1.0"

// maxSections caps the header lines reported by ExtractFromContent.
const maxSections = 50

// Types lists every document type.
var Types = []string{TypeAccountContact, TypeMeetingMemo, TypeOrderFulfillment, TypeCommonMaster}

// Languages lists every language.
var Languages = []string{Korean, English, Japanese, Chinese}

type typeRule struct {
	keyword string
	docType string
}

// typeRules are matched in order against the lower-cased file name.
var typeRules = []typeRule{
	{"거래선", TypeAccountContact},
	{"연락처", TypeAccountContact},
	{"미팅메모", TypeMeetingMemo},
	{"회의", TypeMeetingMemo},
	{"order", TypeOrderFulfillment},
	{"fulfillment", TypeOrderFulfillment},
	{"주문", TypeOrderFulfillment},
	{"발주", TypeOrderFulfillment},
	{"공통", TypeCommonMaster},
	{"master", TypeCommonMaster},
	{"마스터", TypeCommonMaster},
	{"account", TypeAccountContact},
	{"contact", TypeAccountContact},
	{"meeting", TypeMeetingMemo},
	{"memo", TypeMeetingMemo},
}

type languageRule struct {
	markers  []string
	language string
}

var languageRules = []languageRule{
	{[]string{"국문", "(ko)", "korean"}, Korean},
	{[]string{"eng", "english", "(en)"}, English},
	{[]string{"일본", "japanese", "(jp)"}, Japanese},
	{[]string{"중국", "chinese", "(cn)"}, Chinese},
}

var keywordsByType = map[string][]string{
	TypeAccountContact:   {"거래선", "고객", "연락처", "담당자", "Account", "Contact", "Customer"},
	TypeMeetingMemo:      {"미팅", "회의", "메모", "일지", "Meeting", "Memo", "Minutes"},
	TypeOrderFulfillment: {"주문", "발주", "계약", "이행", "Order", "Fulfillment", "Contract"},
	TypeCommonMaster:     {"공통", "설정", "권한", "마스터", "Common", "Master", "Settings"},
}

var typeCodes = map[string]string{
	TypeAccountContact:   "account",
	TypeMeetingMemo:      "meeting",
	TypeOrderFulfillment: "order",
	TypeCommonMaster:     "common",
}

var languageCodes = map[string]string{
	Korean:   "ko",
	English:  "en",
	Japanese: "jp",
	Chinese:  "cn",
}

var displayNames = map[string]map[string]string{
	TypeAccountContact:   {Korean: "거래선 & 연락처", English: "Account & Contact"},
	TypeMeetingMemo:      {Korean: "미팅메모", English: "Meeting Memo"},
	TypeOrderFulfillment: {Korean: "주문 & 이행", English: "Order & Fulfillment"},
	TypeCommonMaster:     {Korean: "공통 & Master", English: "Common & Master"},
}

var versionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)v(\d+\.\d+)`),
	regexp.MustCompile(`(?i)ver(\d+\.\d+)`),
	regexp.MustCompile(`(?i)version(\d+\.\d+)`),
	regexp.MustCompile(`(?i)_(\d+\.\d+)`),
}

// DocumentMetadata identifies and classifies one manual.
type DocumentMetadata struct {
	DocumentID string   `json:"document_id"`
	Type       string   `json:"type"`
	Language   string   `json:"language"`
	Version    string   `json:"version"`
	SourceFile string   `json:"source_file"`
	FileSize   int64    `json:"file_size"`
	Keywords   []string `json:"keywords"`
}

// BaseMetadata returns the metadata every chunk of the document starts from.
func (d DocumentMetadata) BaseMetadata() chunker.Metadata {
	var md chunker.Metadata
	md.Set(chunker.KeyDocumentID, d.DocumentID)
	md.Set(chunker.KeyType, d.Type)
	md.Set(chunker.KeyLanguage, d.Language)
	md.Set(chunker.KeyVersion, d.Version)
	md.Set(chunker.KeySourceFile, d.SourceFile)
	return md
}

// ContentMetadata summarises document text.
type ContentMetadata struct {
	Sections         []string       `json:"sections,omitempty"`
	SectionCount     int            `json:"section_count"`
	KeywordFrequency map[string]int `json:"keyword_frequency,omitempty"`
	CharCount        int            `json:"char_count"`
	WordCount        int            `json:"word_count"`
	LineCount        int            `json:"line_count"`
}

// Extractor derives document metadata. The zero value uses the default header
// matcher.
type Extractor struct {
	Headers *sections.Matcher
}

// NewExtractor returns an Extractor sharing the given header matcher.
func NewExtractor(headers *sections.Matcher) *Extractor {
	return &Extractor{Headers: headers}
}

// ExtractFromFilename classifies a file by its name. It never fails: every
// rule has a fallback. The file size is read when the file exists.
func (e *Extractor) ExtractFromFilename(path string) DocumentMetadata {
	name := filepath.Base(path)
	stem := strings.TrimSuffix(name, filepath.Ext(name))

	var size int64
	if path != "" {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			size = info.Size()
		}
	}

	language := DetectLanguage(stem)
	docType := DetectType(stem)
	version := DetectVersion(stem)

	return DocumentMetadata{
		DocumentID: DocumentID(docType, language, version),
		Type:       docType,
		Language:   language,
		Version:    version,
		SourceFile: name,
		FileSize:   size,
		Keywords:   Keywords(docType),
	}
}

// ExtractFromContent reports header lines, keyword counts and size figures
// for text. Keywords are taken from existing when it is non-nil.
func (e *Extractor) ExtractFromContent(text string, existing *DocumentMetadata) ContentMetadata {
	headers := e.Headers
	if headers == nil {
		headers = sections.Default
	}

	secs := headers.Headers(text, maxSections)
	out := ContentMetadata{
		Sections:     secs,
		SectionCount: len(secs),
		CharCount:    utf8.RuneCountInString(text),
		WordCount:    len(strings.Fields(text)),
		LineCount:    strings.Count(text, "\n") + 1,
	}
	if existing != nil {
		out.KeywordFrequency = countKeywords(text, existing.Keywords)
	}
	return out
}

// DetectLanguage infers a language from explicit markers in name, falling
// back to korean when it contains Hangul syllables and english otherwise.
func DetectLanguage(name string) string {
	lower := strings.ToLower(name)
	for _, rule := range languageRules {
		for _, m := range rule.markers {
			if strings.Contains(lower, m) {
				return rule.language
			}
		}
	}
	if HasHangul(name) {
		return Korean
	}
	return English
}

// DetectType returns the type of the first keyword rule found in name, or
// common_master.
func DetectType(name string) string {
	lower := strings.ToLower(name)
	for _, rule := range typeRules {
		if strings.Contains(lower, rule.keyword) {
			return rule.docType
		}
	}
	return TypeCommonMaster
}

// DetectVersion returns the first "N.N" version found in name, or "1.0".
func DetectVersion(name string) string {
	for _, re := range versionPatterns {
		if m := re.FindStringSubmatch(name); m != nil {
			return m[1]
		}
	}
	return DefaultVersion
}

// DocumentID composes crm_{type}_{lang}_v{version} with dots in the version
// replaced by underscores.
func DocumentID(docType, language, version string) string {
	return "crm_" + TypeCode(docType) + "_" + LanguageCode(language) + "_v" + strings.ReplaceAll(version, ".", "_")
}

// TypeCode returns the short code of a document type, "doc" when unknown.
func TypeCode(docType string) string {
	if c, ok := typeCodes[docType]; ok {
		return c
	}
	return "doc"
}

// LanguageCode returns the two-letter code of a language, "en" when unknown.
func LanguageCode(language string) string {
	if c, ok := languageCodes[language]; ok {
		return c
	}
	return "en"
}

// Keywords returns the keyword list of a document type.
func Keywords(docType string) []string {
	kw := keywordsByType[docType]
	out := make([]string, len(kw))
	copy(out, kw)
	return out
}

// DisplayName returns a human-readable type name in the given language,
// or the type itself when no translation exists.
func DisplayName(docType, language string) string {
	if n, ok := displayNames[docType][language]; ok {
		return n
	}
	return docType
}

// HasHangul reports whether s contains a precomposed Hangul syllable.
func HasHangul(s string) bool {
	for _, r := range s {
		if r >= '가' && r <= '힣' {
			return true
		}
	}
	return false
}

func countKeywords(text string, keywords []string) map[string]int {
	lower := strings.ToLower(text)
	freq := make(map[string]int)
	for _, kw := range keywords {
		if n := strings.Count(lower, strings.ToLower(kw)); n > 0 {
			freq[kw] = n
		}
	}
	return freq
}
