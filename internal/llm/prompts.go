package llm

import (
	"fmt"
	"strings"
)

// Prompt construction for the gateway call shapes. These are pure: they
// build text and have no side effects of their own.

const chatSystemPrompt = `You are a patient, knowledgeable tutor. Explain concepts clearly,
build on what the learner already said in this conversation, and prefer
concrete examples over abstractions.`

const quizQuestionSystemPrompt = `You are a tutor writing one probing long-answer question.
Rules:
- Base the question ONLY on the source text you are given (and the
  highlighted excerpt, when present). Do not introduce outside material.
- The question must require explanation or reasoning, not recall of a
  single fact.
- Output the question text only. No preamble, no numbering, no answer.`

const evaluationSystemPrompt = `You are a tutor evaluating a learner's long-form answer to the
question you asked. Address the learner directly. Point out what the
answer gets right, what is missing or mistaken, and how to deepen it.
Be encouraging but honest. Do NOT assign a numeric score or a grade.`

const titleSystemPrompt = `Create a very short title (at most six words) for a conversation
that starts with the exchange below. Output the title only, with no
quotes and no trailing punctuation.`

const summarySystemPrompt = `You are a helpful assistant. Read the conversation below and create
a VERY SHORT summary of it.
Guidelines:
- Be as concise as possible, around ten to twenty words.
- Capture the main topic or activity of the conversation.`

// quizQuestionUserPrompt renders the source material for call shape (b).
func quizQuestionUserPrompt(source, highlight string) string {
	var b strings.Builder
	b.WriteString("Source text:\n")
	b.WriteString(source)
	if strings.TrimSpace(highlight) != "" {
		b.WriteString("\n\nThe learner highlighted this excerpt; focus the question on it:\n")
		b.WriteString(highlight)
	}
	b.WriteString("\n\nWrite the question now.")
	return b.String()
}

// titleUserPrompt renders the opening message pair for call shape (d).
func titleUserPrompt(userText, assistantText string) string {
	return fmt.Sprintf("User: %s\n\nAssistant: %s", userText, assistantText)
}
