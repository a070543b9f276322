package compose

import (
	"postai-api/internal/infrastructure/llm"
)

// ExtractText 按固定优先级从响应中取出首个文本：
// 片段列表 -> 字符串内容 -> 旧版 text 字段 -> 空串
func ExtractText(resp *llm.Response) string {
	if resp == nil || len(resp.Choices) == 0 {
		return ""
	}
	choice := resp.Choices[0]
	if choice.Message != nil {
		switch content := choice.Message.Content; content.Kind {
		case llm.ContentParts:
			// 内容为片段列表时不再回退到 text 字段
			return firstPartText(content.Parts)
		case llm.ContentString:
			return content.Text
		}
	}
	if choice.Text != nil {
		return *choice.Text
	}
	return ""
}

func firstPartText(parts []llm.ContentPart) string {
	for _, p := range parts {
		if p.Text != nil {
			return *p.Text
		}
	}
	return ""
}
