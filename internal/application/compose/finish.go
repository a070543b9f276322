package compose

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// 模型在 LinkedIn 正文后追加的 X/Twitter 段落标题
	appendedHeadingRe = regexp.MustCompile(`(?i)\n\s*(?:X[:\-]|Twitter[:\-]|Twitter post[:\-]|X post[:\-]|Twitter/X[:\-]|(?:X/Twitter|—\s*X)\b)[\s\S]*$`)
	blockSplitRe      = regexp.MustCompile(`\n\s*\n`)
	tweetMarkerRe     = regexp.MustCompile(`(?i)#|https?://`)
	sentenceEndRe     = regexp.MustCompile(`[.?!]`)
)

const tweetBlockMaxChars = 300

// FinishLinkedIn 解包 JSON 信封后去除误追加的 X 段落
func FinishLinkedIn(raw string) string {
	return StripAppendedTweet(Unwrap(raw, "linkedin"))
}

// FinishX 解包 JSON 信封
func FinishX(raw string) string {
	return Unwrap(raw, "x")
}

// Unwrap 若文本是含字符串字段 key 的 JSON 对象则返回该字段，否则返回去空白后的原文
func Unwrap(raw, key string) string {
	text := strings.TrimSpace(raw)
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return text
	}
	field := strings.TrimSpace(string(obj[key]))
	if !strings.HasPrefix(field, `"`) {
		return text
	}
	var v string
	if err := json.Unmarshal([]byte(field), &v); err != nil {
		return text
	}
	return strings.TrimSpace(v)
}

// StripAppendedTweet 启发式去除正文末尾的推文草稿，依次尝试，命中即返回：
//  1. 存在 X/Twitter 段落标题时，截断标题及其后内容
//  2. 末尾空行分隔的块较短且像推文（含话题标签或链接，或至多一个句末标点）时丢弃该块
//  3. 原样返回
func StripAppendedTweet(text string) string {
	if loc := appendedHeadingRe.FindStringIndex(text); loc != nil {
		return strings.TrimSpace(text[:loc[0]])
	}

	blocks := splitBlocks(text)
	if len(blocks) >= 2 {
		last := blocks[len(blocks)-1]
		if looksLikeTweet(last) {
			return strings.TrimSpace(strings.Join(blocks[:len(blocks)-1], "\n\n"))
		}
	}
	return text
}

func splitBlocks(text string) []string {
	parts := blockSplitRe.Split(text, -1)
	blocks := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			blocks = append(blocks, p)
		}
	}
	return blocks
}

func looksLikeTweet(block string) bool {
	if utf8.RuneCountInString(block) > tweetBlockMaxChars {
		return false
	}
	if tweetMarkerRe.MatchString(block) {
		return true
	}
	return len(sentenceEndRe.Split(block, -1)) <= 2
}
