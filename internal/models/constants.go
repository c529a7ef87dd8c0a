package models

const (
	ContextSeparator = "\n---\n"
	NoIndexMessage   = "Please upload PDF files first."

	DefaultChatModel      = "gemini-2.0-flash"
	DefaultEmbeddingModel = "models/embedding-001"
)

var (
	CondenseQuestionPromptTemplate = `Given the following conversation and a follow up question, rephrase the follow up question to be a standalone question, in its original language.

Chat History:
%s
Follow Up Input: %s
Standalone question:`

	AnswerPromptTemplate = `Use the following pieces of context to answer the question at the end. If you don't know the answer, just say that you don't know, don't try to make up an answer.

%s

Question: %s
Helpful Answer:`
)
