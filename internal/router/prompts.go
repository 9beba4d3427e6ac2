package router

import "maps"

var defaultPrompts = map[string]string{
	"standard": `You clean up dictated text. Fix punctuation, capitalization, and obvious
transcription mistakes. Remove filler words. Keep the speaker's wording and meaning.
Reply with the cleaned text only.`,
	"literal": `You clean up dictated text. Fix punctuation and capitalization only.
Do not reword anything. Reply with the cleaned text only.`,
	"question-answer": `Answer the user's question directly and concisely.
Reply with the answer only.`,
	"refine-selection": `Rewrite the text provided by the user so it reads clearly and correctly.
{{if .Instruction}}Also follow this request: {{.Instruction}}
{{end}}Reply with the rewritten text only.`,
	"refine-by-instruction": `Apply this instruction to the text provided by the user: {{.Instruction}}
Reply with the resulting text only.`,
	"translate": `Translate the text provided by the user into {{if .Language}}{{.Language}}{{else}}English{{end}}.
Reply with the translation only.`,
	"note": `Turn the dictated text into a short, tidy note. Keep every fact.
Reply with the note only.`,
}

// DefaultPrompts returns a copy of the built-in prompt templates keyed by flavor or mode.
func DefaultPrompts() map[string]string {
	return maps.Clone(defaultPrompts)
}
