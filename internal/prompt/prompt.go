package prompt

import (
	"strings"

	"github.com/Keyring-Network/groundchat/internal/llm"
)

const instructions = `You are an AI assistant. You have been provided with the following data, scraped from various websites:

%SOURCES%

Sources:
%URLS%

Your task is to answer the question solely based on the provided data.
Do not invent information that is not present in the data.
Cite the source URLs you relied on.
If the data does not contain enough information to answer the question accurately,
state that you do not have sufficient information.`

type Prompt struct {
	System string
	User   string
}

// Assemble builds the system instruction around the source texts, joined by
// blank lines, and the consulted URLs. The question becomes the user turn
// unchanged.
func Assemble(sources []string, urls []string, question string) Prompt {
	urlList := "None"
	if len(urls) > 0 {
		lines := make([]string, len(urls))
		for i, url := range urls {
			lines[i] = "- " + url
		}
		urlList = strings.Join(lines, "\n")
	}
	system := strings.NewReplacer(
		"%SOURCES%", strings.Join(sources, "\n\n"),
		"%URLS%", urlList,
	).Replace(instructions)
	return Prompt{System: system, User: question}
}

// Messages orders the turns for the model: instruction, prior history, then
// the question.
func (p Prompt) Messages(history []llm.Message) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: p.System})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: p.User})
	return messages
}
