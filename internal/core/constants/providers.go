package constants

const (
	GeminiDefaultBaseURL     = "https://generativelanguage.googleapis.com/v1beta"
	OpenRouterDefaultBaseURL = "https://openrouter.ai/api/v1"

	OpenRouterRefererHeader = "HTTP-Referer"
	OpenRouterTitleHeader   = "X-Title"
)
