package mode

import (
	"strconv"
	"strings"
)

// Retrieval queries used when the request carries no question.
const (
	quizQuery    = "key concepts, definitions and important facts"
	summaryQuery = "main topics, key points and conclusions of the document"
)

type qaStrategy struct{}

func (qaStrategy) Mode() Mode { return QA }

func (qaStrategy) Query(p Params) string { return p.Question }

func (qaStrategy) BuildPrompt(chunks []string, p Params) string {
	var b strings.Builder
	b.WriteString("You are an intelligent assistant. Answer the question based on the provided context.\n\n")
	b.WriteString("Instructions:\n")
	b.WriteString("- Provide detailed and accurate answers\n")
	b.WriteString("- Use only information from the context\n")
	b.WriteString("- If the answer is not in the context, clearly state: \"The answer is not available in the provided context\"\n")
	b.WriteString("- Do not make up or infer information\n")
	b.WriteString("- Structure your answer clearly\n\n")
	writeContext(&b, chunks)
	b.WriteString("Question: ")
	b.WriteString(p.Question)
	b.WriteString("\n\nAnswer:\n")
	return b.String()
}

type quizStrategy struct{}

func (quizStrategy) Mode() Mode { return Quiz }

func (quizStrategy) Query(p Params) string {
	if q := strings.TrimSpace(p.Question); q != "" {
		return q
	}
	return quizQuery
}

func (quizStrategy) BuildPrompt(chunks []string, p Params) string {
	n := strconv.Itoa(p.Questions())

	var b strings.Builder
	b.WriteString("You are an expert Quiz Generator AI.\n\n")
	b.WriteString("Generate exactly " + n + " multiple-choice questions (MCQs) based ONLY on the provided context.\n\n")
	b.WriteString("Requirements:\n")
	b.WriteString("- Each question should have 4 options (A, B, C, D)\n")
	b.WriteString("- Questions should test understanding of key concepts\n")
	b.WriteString("- Provide the correct answer for each question\n")
	b.WriteString("- Use clear and unambiguous language\n\n")
	b.WriteString("Output Format:\n")
	b.WriteString("Q1. [Question text]?\n")
	b.WriteString("    A) [Option A]\n")
	b.WriteString("    B) [Option B]\n")
	b.WriteString("    C) [Option C]\n")
	b.WriteString("    D) [Option D]\n")
	b.WriteString("Correct Answer: [Letter]\n\n")
	writeContext(&b, chunks)
	if q := strings.TrimSpace(p.Question); q != "" {
		b.WriteString("Focus: ")
		b.WriteString(q)
		b.WriteString("\n\n")
	}
	b.WriteString("Generate " + n + " questions now:\n")
	return b.String()
}

type summaryStrategy struct{}

func (summaryStrategy) Mode() Mode { return Summary }

func (summaryStrategy) Query(p Params) string {
	if q := strings.TrimSpace(p.Question); q != "" {
		return q
	}
	return summaryQuery
}

func (summaryStrategy) BuildPrompt(chunks []string, p Params) string {
	var b strings.Builder
	b.WriteString("You are a professional summarizer.\n\n")
	b.WriteString("Create a comprehensive summary of the provided context.\n\n")
	b.WriteString("Requirements:\n")
	b.WriteString("- Capture all key points and main ideas\n")
	b.WriteString("- Use clear and concise language\n")
	b.WriteString("- Organize information logically\n")
	b.WriteString("- Maintain accuracy to the original content\n\n")
	writeContext(&b, chunks)
	if q := strings.TrimSpace(p.Question); q != "" {
		b.WriteString("Additional Instructions: ")
		b.WriteString(q)
		b.WriteString("\n\n")
	}
	b.WriteString("Summary:\n")
	return b.String()
}

// writeContext appends the chunk texts separated by blank lines.
func writeContext(b *strings.Builder, chunks []string) {
	b.WriteString("Context:\n")
	b.WriteString(strings.Join(chunks, "\n\n"))
	b.WriteString("\n\n")
}
