package rag

import (
	"regexp"
	"sort"
	"strings"
)

// 日期匹配模式，覆盖常见书写格式
var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`), // MM/DD/YYYY 或 DD/MM/YYYY
	regexp.MustCompile(`\b\d{4}[/-]\d{1,2}[/-]\d{1,2}\b`),   // YYYY/MM/DD
	regexp.MustCompile(`(?i)\b(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}\s+(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{4}\b`),
}

// 人名候选：两个连续首字母大写的单词，简单启发式
var namePattern = regexp.MustCompile(`\b[A-Z][a-z]+\s+[A-Z][a-z]+\b`)

// 领域关键词表：医疗、家庭、住址相关
var keywordVocabulary = []string{
	"medicine", "medication", "doctor", "appointment", "birthday", "anniversary",
	"family", "daughter", "son", "wife", "husband", "mother", "father",
	"home", "address", "work", "job", "hospital", "clinic",
}

var keywordPatterns = func() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(keywordVocabulary))
	for _, kw := range keywordVocabulary {
		m[kw] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`)
	}
	return m
}()

// ExtractMetadata 从文本中提取轻量元数据
// 纯函数，无副作用：日期、人名候选、关键词命中
func ExtractMetadata(text string) map[string]any {
	dates := make([]string, 0)
	for _, p := range datePatterns {
		dates = append(dates, p.FindAllString(text, -1)...)
	}

	// 去重人名候选
	seen := make(map[string]struct{})
	people := make([]string, 0)
	for _, name := range namePattern.FindAllString(text, -1) {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		people = append(people, name)
	}
	sort.Strings(people)

	keywords := make([]string, 0)
	for _, kw := range keywordVocabulary {
		if keywordPatterns[kw].MatchString(text) {
			keywords = append(keywords, kw)
		}
	}

	return map[string]any{
		"dates":    dates,
		"people":   people,
		"keywords": keywords,
	}
}

// HasKeyword 判断元数据中是否命中指定关键词
func HasKeyword(metadata map[string]any, keyword string) bool {
	raw, ok := metadata["keywords"]
	if !ok {
		return false
	}

	switch kws := raw.(type) {
	case []string:
		for _, kw := range kws {
			if strings.EqualFold(kw, keyword) {
				return true
			}
		}
	case []any:
		// JSON 反序列化后的形态
		for _, kw := range kws {
			if s, ok := kw.(string); ok && strings.EqualFold(s, keyword) {
				return true
			}
		}
	}
	return false
}
