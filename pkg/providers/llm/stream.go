package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/vocalrelay/vocalrelay/pkg/orchestrator"
)

// LocalStreamLLM talks to a local OpenAI-compatible chat completions
// endpoint (llama.cpp server, Ollama's OpenAI shim, LM Studio, vLLM) that
// streams its response. Such servers disagree on framing: some send
// Server-Sent Events ("data: {...}\n\n", terminated by "data: [DONE]"),
// others send newline-delimited JSON objects with no "data: " prefix at
// all. decodeLine handles both so callers don't need to know which one
// they're talking to.
type LocalStreamLLM struct {
	url   string
	model string
}

func NewLocalStreamLLM(url, model string) *LocalStreamLLM {
	return &LocalStreamLLM{url: url, model: model}
}

func (l *LocalStreamLLM) Name() string {
	return "local-stream-llm"
}

// Complete collects a full response by draining Stream.
func (l *LocalStreamLLM) Complete(ctx context.Context, messages []orchestrator.Message) (string, error) {
	var sb strings.Builder
	err := l.Stream(ctx, messages, func(token string) error {
		sb.WriteString(token)
		return nil
	})
	return sb.String(), err
}

func (l *LocalStreamLLM) Stream(ctx context.Context, messages []orchestrator.Message, onToken func(string) error) error {
	payload := map[string]interface{}{
		"model":    l.model,
		"messages": messages,
		"stream":   true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", l.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return fmt.Errorf("local llm error (status %d): %v", resp.StatusCode, errResp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		done, token, err := decodeLine(line)
		if err != nil {
			continue // tolerate keep-alive/comment lines some servers emit
		}
		if done {
			return nil
		}
		if token != "" {
			if err := onToken(token); err != nil {
				return err
			}
		}
	}
	return scanner.Err()
}

// decodeLine extracts a content delta from one line of either SSE framing
// ("data: {...}") or bare NDJSON ("{...}"), and reports whether the stream
// has signaled completion.
func decodeLine(line string) (done bool, token string, err error) {
	if strings.HasPrefix(line, "data:") {
		line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	}
	if line == "[DONE]" {
		return true, "", nil
	}

	var chunk struct {
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
			Text         string  `json:"text"`
			FinishReason *string `json:"finish_reason"`
		} `json:"choices"`
		Done bool `json:"done"`
		// Prompt-style completion servers carry the token here.
		Response string `json:"response"`
		// Ollama's native streaming shape, as a fallback if a server sends it
		// without the OpenAI-compatible wrapper.
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if jsonErr := json.Unmarshal([]byte(line), &chunk); jsonErr != nil {
		return false, "", jsonErr
	}

	if chunk.Done {
		return true, "", nil
	}
	if len(chunk.Choices) > 0 {
		token := chunk.Choices[0].Delta.Content
		if token == "" {
			token = chunk.Choices[0].Text
		}
		if chunk.Choices[0].FinishReason != nil {
			return true, token, nil
		}
		return false, token, nil
	}
	if chunk.Message.Content != "" {
		return false, chunk.Message.Content, nil
	}
	return false, chunk.Response, nil
}
