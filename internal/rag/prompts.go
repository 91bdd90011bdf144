package rag

// Fallback is the answer expected when the context does not cover the question.
const Fallback = "I don't know based on the provided document."

// NoContextMarker replaces the context when retrieval returns nothing.
const NoContextMarker = "No relevant context found."

const rephraseInstruction = `Given the conversation so far and a follow-up question, rewrite the follow-up as a standalone question that can be understood without the conversation.
Resolve pronouns and references using the conversation. Do not answer the question.
Return only the rewritten question.`

const answerInstruction = `You are SmartDoc, an assistant that answers questions about the user's uploaded document.
Use ONLY the context below and the conversation history. Do not use outside knowledge.
- If the user greets you, greet them back briefly and offer to help with the document.
- If the user asks about the conversation itself (for example what they asked earlier), answer from the conversation history.
- If the context does not contain the answer, reply exactly: "` + Fallback + `"

Context:
`

const followUpInstruction = `Suggest exactly 3 short follow-up questions the user could ask next about the document, based on the question and answer below.
Write one question per line. No preamble, no numbering, no bullets, no headings.`
