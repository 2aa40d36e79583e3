package llm

import (
	"context"
	"strings"
)

// Prompt texts for the chat pipeline. The contextualize and answer
// prompts keep the query understandable without history and keep
// answers short and grounded in retrieved context.
const (
	contextualizePrompt = "Given the chat history and the latest user question " +
		"which might reference context in the chat history, " +
		"formulate a standalone question which can be understood " +
		"without the chat history. Do NOT answer the question, just " +
		"reformulate it if needed and otherwise return it as is."

	answerPrompt = "You are an assistant for question-answering tasks. Use " +
		"the following pieces of retrieved context to answer the " +
		"question. If you don't know the answer, just say that you " +
		"don't know. Use three sentences maximum and keep the answer " +
		"concise.\n\n"

	imageAnswerPrompt = "You are an assistant answering questions about images " +
		"in the document collection. Use the following image descriptions " +
		"to answer the question. If the descriptions do not cover it, say " +
		"that you don't know. Keep the answer concise.\n\n"

	titlePrompt = "Generate a short, descriptive title (at most five words) " +
		"for a chat session that starts with the following question. " +
		"Reply with the title only, no quotes or punctuation around it.\n\nQuestion: "

	classifyPrompt = "Does the following question ask about an image, picture, " +
		"photo, diagram, or other visual content? Answer with exactly one " +
		"word: yes or no.\n\nQuestion: "

	describeImagePrompt = "Describe this image in detail so the description " +
		"can stand in for the image in a searchable document index. Mention " +
		"any visible text verbatim."
)

// HistoryMessage mirrors a stored session turn: role is "human" or "system".
type HistoryMessage struct {
	Role    string
	Content string
}

// historyToMessages converts stored history to chat roles.
// Session storage uses human/system; the model expects user/assistant.
func historyToMessages(history []HistoryMessage) []Message {
	messages := make([]Message, 0, len(history))
	for _, h := range history {
		role := RoleAssistant
		if h.Role == "human" {
			role = RoleUser
		}
		messages = append(messages, Message{Role: role, Content: h.Content})
	}
	return messages
}

// Contextualize reformulates the query into a standalone question using
// the chat history. With no history, the query is returned unchanged
// without a model call.
func Contextualize(ctx context.Context, client Client, history []HistoryMessage, query string) (string, error) {
	if len(history) == 0 {
		return query, nil
	}

	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{Role: RoleSystem, Content: contextualizePrompt})
	messages = append(messages, historyToMessages(history)...)
	messages = append(messages, Message{Role: RoleUser, Content: query})

	reformulated, err := client.Chat(ctx, messages)
	if err != nil {
		return "", err
	}

	reformulated = strings.TrimSpace(reformulated)
	if reformulated == "" {
		return query, nil
	}
	return reformulated, nil
}

// Answer generates an answer grounded in the retrieved context chunks.
// imageQuery selects the image-focused answer prompt.
func Answer(ctx context.Context, client Client, history []HistoryMessage, contextChunks []string, query string, imageQuery bool) (string, error) {
	system := answerPrompt
	if imageQuery {
		system = imageAnswerPrompt
	}
	system += strings.Join(contextChunks, "\n\n")

	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{Role: RoleSystem, Content: system})
	messages = append(messages, historyToMessages(history)...)
	messages = append(messages, Message{Role: RoleUser, Content: query})

	return client.Chat(ctx, messages)
}

// GenerateTitle produces a short session title from the first query.
func GenerateTitle(ctx context.Context, client Client, query string) (string, error) {
	title, err := client.Chat(ctx, []Message{{Role: RoleUser, Content: titlePrompt + query}})
	if err != nil {
		return "", err
	}
	return strings.Trim(strings.TrimSpace(title), `"'`), nil
}

// IsImageQuery asks the model whether the query is about visual content.
// Any failure or ambiguous reply counts as "no" so text retrieval still runs.
func IsImageQuery(ctx context.Context, client Client, query string) bool {
	reply, err := client.Chat(ctx, []Message{{Role: RoleUser, Content: classifyPrompt + query}})
	if err != nil {
		return false
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(reply)), "yes")
}

// ImageDescriber adapts a vision-capable Client to the loader's
// Describer interface.
type ImageDescriber struct {
	Client Client
}

// Describe returns a searchable text description of the image.
func (d *ImageDescriber) Describe(ctx context.Context, path string) (string, error) {
	return d.Client.ChatWithImage(ctx, describeImagePrompt, path)
}
