package models

const (
	// NoContextAnswer is returned without calling the generator when retrieval finds nothing usable
	NoContextAnswer = "I don't have enough relevant information in the uploaded documents to answer this question accurately. Please try rephrasing your question or upload more relevant documents."

	// SystemPrompt is sent as the system message to the inference model
	SystemPrompt = "You are an AI assistant specialized in helping with exam preparation. You have access to specific study materials and should provide accurate, helpful answers based on the provided context."

	ContextSeparator = "\n"
	ThinkTag         = `(?s)<think>.*?</think>`
)

var (
	// AnswerPromptTemplate takes the formatted context and the user question
	AnswerPromptTemplate = `CONTEXT FROM STUDY MATERIALS:
%s

USER QUESTION: %s

INSTRUCTIONS:
1. Answer the question based primarily on the provided context from the study materials
2. If the context doesn't contain enough information to answer completely, say so and provide what information you can
3. Be specific and cite relevant details from the materials when possible
4. If the question is about concepts not covered in the materials, explain that the specific topic isn't covered in the uploaded documents
5. Provide clear, educational explanations that help with exam preparation
6. If applicable, suggest related topics or concepts that might be helpful
7. Format your response using Markdown for better readability (use headers, bullet points, bold text, etc.)

Please provide a comprehensive answer based on the study materials provided, formatted in Markdown.
`
)
