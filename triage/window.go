package triage

import (
	"github.com/vaidyahealth/vaidya/providers/ai"
)

// Default prompt window shape. Once a conversation grows past
// DefaultWindowMinMessages stored messages and a summary exists, prompts
// carry the summary plus the last DefaultWindowTailMessages messages instead
// of the full log.
const (
	DefaultWindowMinMessages  = 12
	DefaultWindowTailMessages = 10
)

// PromptWindow builds the message window sent to a model for this state.
// When the state carries a conversation summary and the log holds more than
// minMessages entries, the window is a system message with the summary
// followed by the last tailMessages log entries. Otherwise the full log is
// returned. Values below 1 fall back to the package defaults.
func PromptWindow(state ConversationState, minMessages, tailMessages int) []ai.Message {
	if minMessages < 1 {
		minMessages = DefaultWindowMinMessages
	}
	if tailMessages < 1 {
		tailMessages = DefaultWindowTailMessages
	}

	if state.ConversationSummary != "" && len(state.Messages) > minMessages {
		window := make([]ai.Message, 0, tailMessages+1)
		window = append(window, ai.Message{
			Role:    ai.RoleSystem,
			Content: "Conversation so far (summarized): " + state.ConversationSummary,
		})
		tail := state.Messages[len(state.Messages)-tailMessages:]
		return append(window, toAIMessages(tail)...)
	}

	return toAIMessages(state.Messages)
}

// toAIMessages converts log entries to the provider message format.
func toAIMessages(messages []Message) []ai.Message {
	converted := make([]ai.Message, 0, len(messages))
	for _, message := range messages {
		converted = append(converted, ai.Message{
			Role:    ai.MessageRole(message.Role),
			Content: message.Content,
		})
	}
	return converted
}
