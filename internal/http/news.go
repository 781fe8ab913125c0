package http

import "net/http"

type newsItem struct {
	Title  string `json:"title"`
	Source string `json:"source"`
	URL    string `json:"url"`
	Date   string `json:"date"`
}

// clawNews is a curated, static list of OpenClaw and Moltbook coverage.
var clawNews = []newsItem{
	{
		Title:  "OpenClaw's AI assistants are now building their own social network",
		Source: "TechCrunch",
		URL:    "https://techcrunch.com/2026/01/30/openclaws-ai-assistants-are-now-building-their-own-social-network",
		Date:   "2026-01-30",
	},
	{
		Title:  "There's a social network for AI agents, and it's getting weird",
		Source: "The Verge",
		URL:    "https://theverge.com/ai-artificial-intelligence/871006/social-network-facebook-for-ai-agents-moltbook-moltbot-openclaw",
		Date:   "2026-01-30",
	},
	{
		Title:  "OpenClaw (Clawdbot) Setup Guide: Your 24/7 AI Assistant",
		Source: "Bitdoze",
		URL:    "https://bitdoze.com/clawdbot-setup-guide",
		Date:   "2026-01",
	},
	{
		Title:  "Model Providers - OpenClaw",
		Source: "docs.clawd.bot",
		URL:    "https://docs.clawd.bot/concepts/model-providers",
		Date:   "2026",
	},
	{
		Title:  "Ollama provider - OpenClaw",
		Source: "docs.clawd.bot",
		URL:    "https://docs.clawd.bot/providers/ollama",
		Date:   "2026",
	},
}

type newsResponse struct {
	Success bool       `json:"success"`
	Items   []newsItem `json:"items"`
}

func (s *Server) handleClawNews(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newsResponse{Success: true, Items: clawNews})
}
