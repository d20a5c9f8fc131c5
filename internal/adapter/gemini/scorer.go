package gemini

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Scorer 实现了 port.TextGenerator 接口，底层走 Gemini API。
// 条目评分和总结生成共用这一个实现，prompt 由上层拼装。
type Scorer struct {
	client    *genai.Client
	model     *genai.GenerativeModel
	modelName string
}

// NewScorer 初始化 Gemini 客户端
func NewScorer(ctx context.Context, apiKey, modelName string) (*Scorer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API Key 为空")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash-lite"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	return &Scorer{
		client:    client,
		model:     client.GenerativeModel(modelName),
		modelName: modelName,
	}, nil
}

// ModelName 返回当前使用的模型名（写进报告的 ai.model 字段）
func (s *Scorer) ModelName() string {
	return s.modelName
}

// Generate 发送 prompt 并拼接返回的全部文本片段。
// 不在这里做任何 JSON 解析，上层自己决定怎么消费文本。
func (s *Scorer) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := s.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("AI 调用失败: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("AI 返回内容为空")
	}

	var out string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out += string(text)
		}
	}
	if out == "" {
		return "", fmt.Errorf("AI 返回格式错误")
	}

	return out, nil
}

// Close 释放底层连接
func (s *Scorer) Close() error {
	return s.client.Close()
}
