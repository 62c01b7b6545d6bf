package rag

import (
	"fmt"
	"strings"

	"github.com/ziadkadry99/crm-manual-rag/internal/chunker"
	"github.com/ziadkadry99/crm-manual-rag/internal/metadata"
	"github.com/ziadkadry99/crm-manual-rag/internal/vectordb"
)

const systemPromptKorean = `당신은 POSCO International의 CRM 시스템 전문가입니다.
사용자의 질문에 대해 제공된 매뉴얼 내용을 바탕으로 정확하고 친절하게 답변해주세요.

답변 스타일 가이드:
1. **핵심 답변 먼저**: 질문에 대한 직접적인 답변을 첫 줄에 제시하세요
2. **이모지 활용**: 적절한 이모지로 가독성을 높이세요 (✅, 📋, 💡, ⚠️, 1️⃣, 2️⃣ 등)
3. **단계별 구조화**: 프로세스는 1️⃣, 2️⃣, 3️⃣ 형식으로 명확하게 구분하세요
4. **표 형식**: 비교나 요약이 필요한 경우 마크다운 표를 활용하세요
5. **강조 포인트**: 💡 팁, ⚠️ 주의사항, 📌 요약 등으로 중요 정보를 강조하세요
6. **친근한 어조**: "~입니다", "~해주세요" 보다는 "~이에요", "~하면 됩니다" 같은 친근한 표현 사용
7. **근거 기반**: 제공된 문서 내용만을 기반으로 답변하며, 추측하지 마세요

답변 구조 예시:
[질문에 대한 핵심 답변을 1-2줄로 먼저 제시] ✅

🔍 상세 절차

1️⃣ 첫 번째 단계
- 세부 설명

2️⃣ 두 번째 단계
- 세부 설명

💡 Tip
- 유용한 팁이나 추가 정보

⚠️ 주의사항
- 중요하게 알아야 할 포인트

📌 요약
| 항목 | 설명 |
|------|------|
| ... | ... |
`

const systemPromptEnglish = `You are a CRM system expert for POSCO International.
Please provide accurate and helpful answers to user questions based on the provided manual content.

Answer Style Guide:
1. **Core Answer First**: Present the direct answer in the first 1-2 lines
2. **Use Emojis**: Enhance readability with appropriate emojis (✅, 📋, 💡, ⚠️, 1️⃣, 2️⃣, etc.)
3. **Step-by-Step Structure**: Use 1️⃣, 2️⃣, 3️⃣ format for clear process steps
4. **Table Format**: Use markdown tables for comparisons or summaries
5. **Highlight Points**: Emphasize with 💡 Tips, ⚠️ Cautions, 📌 Summary
6. **Friendly Tone**: Use conversational language that's easy to understand
7. **Evidence-Based**: Base answers only on provided documents; don't speculate

Answer Structure Example:
[Present core answer in 1-2 lines first] ✅

🔍 Detailed Steps

1️⃣ First Step
- Details

2️⃣ Second Step
- Details

💡 Tip
- Useful tips or additional information

⚠️ Important Notes
- Key points to remember

📌 Summary
| Item | Description |
|------|-------------|
| ... | ... |
`

const userPromptKorean = `사용자 질문: %s

관련 문서 내용:
%s

위 문서 내용을 바탕으로 사용자의 질문에 답변해주세요.
답변은 명확하고 구체적으로 작성하며, 필요한 경우 예시를 포함해주세요.
`

const userPromptEnglish = `User Question: %s

Relevant Document Content:
%s

Based on the above document content, please answer the user's question.
Provide a clear and specific answer, including examples if necessary.
`

const (
	contextBlockKorean  = "\n[문서 %d]\n출처: %s\n내용:\n%s\n---\n"
	contextBlockEnglish = "\n[Document %d]\nSource: %s\nContent:\n%s\n---\n"
)

const unknown = "Unknown"

// SystemPrompt returns the system prompt for language.
func SystemPrompt(language string) string {
	if language == metadata.Korean {
		return systemPromptKorean
	}
	return systemPromptEnglish
}

// FormatContext numbers results from 1 as context blocks citing the
// document type and id.
func FormatContext(results []vectordb.SearchResult, language string) string {
	block := contextBlockEnglish
	if language == metadata.Korean {
		block = contextBlockKorean
	}
	parts := make([]string, 0, len(results))
	for i, r := range results {
		source := orUnknown(r.Metadata.String(chunker.KeyType)) + " - " + orUnknown(r.Metadata.String(chunker.KeyDocumentID))
		parts = append(parts, fmt.Sprintf(block, i+1, source, r.Text))
	}
	return strings.Join(parts, "\n")
}

// UserPrompt fills the question template with the query and context.
func UserPrompt(query string, results []vectordb.SearchResult, language string) string {
	tmpl := userPromptEnglish
	if language == metadata.Korean {
		tmpl = userPromptKorean
	}
	return fmt.Sprintf(tmpl, query, FormatContext(results, language))
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}
