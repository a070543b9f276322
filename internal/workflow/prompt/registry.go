// Package prompt 管理帖子生成使用的提示词模板
package prompt

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"sync"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed templates/*.txt
var templatesFS embed.FS

type PromptID string

const (
	PromptLinkedInPostV1 PromptID = "linkedin_post_v1"
	PromptXPostV1        PromptID = "x_post_v1"
)

// 模板变量名
const (
	VarPrompt  = "prompt"
	VarContext = "context"
)

// Rendered 渲染后的系统提示与用户提示
type Rendered struct {
	System string
	User   string
}

type Registry struct {
	mu    sync.RWMutex
	cache map[PromptID]einoprompt.ChatTemplate
}

func NewRegistry() *Registry {
	return &Registry{
		cache: make(map[PromptID]einoprompt.ChatTemplate),
	}
}

func (r *Registry) ChatTemplate(id PromptID) (einoprompt.ChatTemplate, error) {
	if r == nil {
		return nil, fmt.Errorf("prompt registry is nil")
	}

	r.mu.RLock()
	if tpl, ok := r.cache[id]; ok {
		r.mu.RUnlock()
		return tpl, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if tpl, ok := r.cache[id]; ok {
		return tpl, nil
	}

	systemPath, userPath, err := resolvePromptFiles(id)
	if err != nil {
		return nil, err
	}
	system, err := readEmbeddedText(systemPath)
	if err != nil {
		return nil, err
	}
	user, err := readEmbeddedText(userPath)
	if err != nil {
		return nil, err
	}

	tpl := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	)
	r.cache[id] = tpl
	return tpl, nil
}

// Render 渲染模板，返回系统提示与用户提示文本
func (r *Registry) Render(ctx context.Context, id PromptID, vars map[string]any) (Rendered, error) {
	tpl, err := r.ChatTemplate(id)
	if err != nil {
		return Rendered{}, err
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return Rendered{}, fmt.Errorf("format prompt %s: %w", id, err)
	}

	var out Rendered
	for _, m := range msgs {
		switch m.Role {
		case schema.System:
			out.System = m.Content
		case schema.User:
			out.User = m.Content
		}
	}
	return out, nil
}

const systemFile = "templates/social_post_v1.system.txt"

func resolvePromptFiles(id PromptID) (systemPath string, userPath string, err error) {
	switch id {
	case PromptLinkedInPostV1:
		return systemFile, "templates/linkedin_post_v1.user.txt", nil
	case PromptXPostV1:
		return systemFile, "templates/x_post_v1.user.txt", nil
	default:
		return "", "", fmt.Errorf("unknown prompt id: %s", id)
	}
}

func readEmbeddedText(path string) (string, error) {
	b, err := templatesFS.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
