package finder

import "strings"

// topicTable maps keyword hits to the broad category handed to the generic
// search. First matching category wins; table order is the tie-break.
var topicTable = []struct {
	topic    string
	keywords []string
}{
	{"cryptocurrency", []string{"bitcoin", "crypto", "cryptocurrency", "ethereum", "blockchain", "stablecoin", "defi", "nft"}},
	{"artificial intelligence", []string{"artificial intelligence", "machine learning", "neural network", "llm", "chatbot", "chatgpt", "openai", "deep learning"}},
	{"robotics", []string{"robot", "robotics", "humanoid", "drone", "automation"}},
	{"finance", []string{"finance", "financial", "stock market", "investment", "investor", "bank", "trading", "economy", "inflation"}},
	{"technology", []string{"technology", "software", "startup", "semiconductor", "chip", "computer", "cloud computing", "internet"}},
	{"social media", []string{"social media", "twitter", "facebook", "instagram", "tiktok", "youtube", "reddit", "influencer"}},
	{"gaming", []string{"gaming", "video game", "esports", "console", "playstation", "xbox", "nintendo"}},
	{"automotive", []string{"automotive", "electric vehicle", "self-driving", "autonomous driving", "tesla", "car maker"}},
}

const defaultTopic = "technology"

// TopicFor derives the broad search topic from free text by keyword match.
// Unmatched text falls back to the technology topic.
func TopicFor(text string) string {
	text = strings.ToLower(text)
	for _, row := range topicTable {
		for _, kw := range row.keywords {
			if containsKeyword(text, kw) {
				return row.topic
			}
		}
	}
	return defaultTopic
}

// containsKeyword matches kw on word boundaries so short keywords do not
// fire inside unrelated words.
func containsKeyword(text, kw string) bool {
	idx := 0
	for {
		pos := strings.Index(text[idx:], kw)
		if pos < 0 {
			return false
		}
		pos += idx
		before := pos == 0 || !isWordRune(rune(text[pos-1]))
		afterIdx := pos + len(kw)
		after := afterIdx >= len(text) || !isWordRune(rune(text[afterIdx]))
		if before && after {
			return true
		}
		idx = pos + 1
	}
}

func isWordRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}
