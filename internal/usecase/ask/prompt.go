package ask

import (
	"fmt"

	"github.com/kailas-cloud/wikiqa/internal/domain"
)

const (
	translateInstruction = "Translate the following Korean question into English: %s"

	answerInstruction = "You are an assistant that answers in Korean based only on the given context. " +
		"If the context does not contain the answer or you are not sure, say in Korean that you do not know. " +
		"Do not make up facts."

	answerTemplate = "질문: %s\n\n참고 문서: %s"
)

func translatePrompt(question string) []domain.Message {
	return []domain.Message{
		{Role: domain.RoleUser, Content: fmt.Sprintf(translateInstruction, question)},
	}
}

func answerPrompt(question, grounding string) []domain.Message {
	return []domain.Message{
		{Role: domain.RoleSystem, Content: answerInstruction},
		{Role: domain.RoleUser, Content: fmt.Sprintf(answerTemplate, question, grounding)},
	}
}
