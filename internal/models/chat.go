package models

// GenerationRequest is one call to the text-generation backend.
type GenerationRequest struct {
	Prompt  string `json:"prompt"`
	ModelID string `json:"model_id"`
}

type ChatRequest struct {
	Question string `json:"question"`
}

type ChatResponse struct {
	Answer string `json:"answer"`
	Chunks int    `json:"chunks_used"`
}

type ExplainRequest struct {
	Concept string `json:"concept"`
}

type ExplainResponse struct {
	Explanation string `json:"explanation"`
}
