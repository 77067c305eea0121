package types

// GenerationSettings tunes a single provider invocation. All fields are
// optional; zero values defer to provider defaults.
type GenerationSettings struct {
	Model       string   `json:"model,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// GenerationContext carries auxiliary material the prompt builder folds into
// the upstream request. Immutable once passed to a provider.
type GenerationContext struct {
	SystemPrompt  string   `json:"system_prompt,omitempty"`
	Personas      []string `json:"personas,omitempty"`
	ChapterTitles []string `json:"chapter_titles,omitempty"`
}
