package session

import (
	"fmt"
	"strings"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/docqa/console/pkg/logger"
)

// GeneralSuggestions fill the follow-up list when the answer names too few
// topics of its own.
var GeneralSuggestions = []string{
	"What are the main findings in these documents?",
	"Can you summarize the key points from the sources?",
	"What methodology was used in these documents?",
	"Are there any limitations mentioned in the sources?",
	"What conclusions are drawn in these documents?",
}

const maxTopicWords = 4

// BuildSuggestions proposes up to limit follow-up questions: first about the
// named entities and proper nouns in answer that question did not mention,
// then general ones.
func BuildSuggestions(question, answer string, limit int) []string {
	if limit <= 0 {
		return nil
	}

	asked := strings.ToLower(question)
	seen := make(map[string]struct{})
	var out []string

	add := func(s string) bool {
		key := strings.ToLower(s)
		if _, dup := seen[key]; dup {
			return len(out) < limit
		}
		seen[key] = struct{}{}
		out = append(out, s)
		return len(out) < limit
	}

	for _, topic := range answerTopics(answer) {
		if strings.Contains(asked, strings.ToLower(topic)) {
			continue
		}
		if !add(fmt.Sprintf("What else do the sources say about %s?", topic)) {
			return out
		}
	}

	for _, s := range GeneralSuggestions {
		if strings.EqualFold(strings.TrimSpace(question), s) {
			continue
		}
		if !add(s) {
			return out
		}
	}
	return out
}

func answerTopics(answer string) []string {
	if strings.TrimSpace(answer) == "" {
		return nil
	}

	doc, err := prose.NewDocument(answer, prose.WithSegmentation(false))
	if err != nil {
		logger.Debug("Topic extraction failed", zap.Error(err))
		return nil
	}

	var topics []string
	for _, ent := range doc.Entities() {
		if validTopic(ent.Text) {
			topics = append(topics, ent.Text)
		}
	}

	// Consecutive proper nouns form one topic.
	var run []string
	flush := func() {
		if len(run) > 0 && len(run) <= maxTopicWords {
			if t := strings.Join(run, " "); validTopic(t) {
				topics = append(topics, t)
			}
		}
		run = nil
	}
	for _, tok := range doc.Tokens() {
		if tok.Tag == "NNP" || tok.Tag == "NNPS" {
			run = append(run, tok.Text)
			continue
		}
		flush()
	}
	flush()

	return topics
}

func validTopic(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) < 3 {
		return false
	}
	return len(strings.Fields(s)) <= maxTopicWords
}
