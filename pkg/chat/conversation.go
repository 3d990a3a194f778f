package chat

type Conversation struct {
	Messages  []AssembledMessage
	Assistant string
}

func NewConversation(assistant string) Conversation {
	return Conversation{
		Messages:  make([]AssembledMessage, 0),
		Assistant: assistant,
	}
}

func AddMessage(conv Conversation, msg AssembledMessage) Conversation {
	messages := make([]AssembledMessage, len(conv.Messages)+1)
	copy(messages, conv.Messages)
	messages[len(conv.Messages)] = msg

	return Conversation{
		Messages:  messages,
		Assistant: conv.Assistant,
	}
}

func GetMessages(conv Conversation) []AssembledMessage {
	result := make([]AssembledMessage, len(conv.Messages))
	copy(result, conv.Messages)
	return result
}

func GetMessageCount(conv Conversation) int {
	return len(conv.Messages)
}

func GetLastMessage(conv Conversation) (AssembledMessage, bool) {
	if len(conv.Messages) == 0 {
		return AssembledMessage{}, false
	}
	return conv.Messages[len(conv.Messages)-1], true
}

func GetLastAssistantMessage(conv Conversation) (AssembledMessage, bool) {
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if conv.Messages[i].IsAssistant() {
			return conv.Messages[i], true
		}
	}
	return AssembledMessage{}, false
}

func GetLastUserMessage(conv Conversation) (AssembledMessage, bool) {
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if conv.Messages[i].IsUser() {
			return conv.Messages[i], true
		}
	}
	return AssembledMessage{}, false
}

func IsEmpty(conv Conversation) bool {
	return len(conv.Messages) == 0
}
