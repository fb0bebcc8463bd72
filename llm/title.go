package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shibayu36/personachat/memory"
)

const (
	titleSeedRunes   = 200
	titleMaxRunes    = 40
	titleMaxTokens   = 20
	titleTemperature = 0.5
)

const titleQuotes = " \t\"'`“”「」*#"

const titleTemplate = `Write an extremely short title (no more than 10 words) for the conversation below.
Do not include the word "title"; output only the title itself.

User: %s
AI: %s`

// Title generates a short conversation title from the first exchange.
func (c *Client) Title(ctx context.Context, model, userText, reply string) (string, error) {
	prompt := fmt.Sprintf(titleTemplate, truncate(userText, titleSeedRunes), truncate(reply, titleSeedRunes))

	text, err := c.Complete(ctx, []memory.Message{{Role: memory.RoleUser, Content: prompt}}, Params{
		Model:       model,
		Temperature: titleTemperature,
		MaxTokens:   titleMaxTokens,
	})
	if err != nil {
		return "", err
	}

	title := CleanTitle(text)
	if title == "" {
		return "", errors.New("empty title")
	}
	return title, nil
}

// CleanTitle trims whitespace, quotes and trailing punctuation and caps the length.
func CleanTitle(s string) string {
	s = strings.TrimSpace(s)
	if first, _, ok := strings.Cut(s, "\n"); ok {
		s = first
	}
	s = strings.TrimRight(strings.Trim(s, titleQuotes), ".。")
	s = strings.Trim(s, titleQuotes)
	return truncate(strings.TrimSpace(s), titleMaxRunes)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
