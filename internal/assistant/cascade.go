package assistant

import (
	"strings"
	"unicode"
)

// Category tags a response with the rule that produced it.
type Category string

const (
	CategoryGreeting    Category = "greeting"
	CategorySummary     Category = "summary"
	CategoryPerformance Category = "performance"
	CategoryExam        Category = "exam"
	CategoryStudyTips   Category = "study_tips"
	CategorySchedule    Category = "schedule"
	CategoryMath        Category = "math"
	CategoryMotivation  Category = "motivation"
	CategoryFallback    Category = "fallback"
	// CategoryModel marks text produced by a remote model.
	CategoryModel Category = "model"
)

// Response is one assistant answer.
type Response struct {
	Category Category `json:"category"`
	Text     string   `json:"text"`
}

// Rule is one row of the cascade. Keywords match whole words; a keyword
// containing a space matches as a phrase.
type Rule struct {
	Category Category
	Keywords []string
	Reply    string
}

// Cascade is evaluated top to bottom; the first rule with a matching
// keyword wins. The fallback reply is used when none match.
var Cascade = []Rule{
	{
		Category: CategoryGreeting,
		Keywords: []string{"hello", "hi", "hey", "greetings", "good morning", "good afternoon", "good evening"},
		Reply:    "Hello! I'm your study assistant. I can summarize lectures, help you prepare for exams, suggest study techniques, or plan your week. What would you like to work on?",
	},
	{
		Category: CategorySummary,
		Keywords: []string{"summarize", "summarise", "summary", "recap", "overview", "key points", "tl;dr"},
		Reply:    "Here is a quick way to summarize a lecture:\n1. Write the main topic in one sentence.\n2. List the three to five key ideas.\n3. Note one example for each idea.\n4. Finish with open questions to review.\nOpen a lecture with a transcription and I can generate a summary for it.",
	},
	{
		Category: CategoryPerformance,
		Keywords: []string{"score", "scores", "grade", "grades", "marks", "performance", "results"},
		Reply:    "Looking at your results, focus first on the subjects below your average: they offer the largest gains. Keep your strongest subjects warm with short weekly reviews, and track your scores after each practice test to see what is working.",
	},
	{
		Category: CategoryExam,
		Keywords: []string{"exam", "exams", "test", "tests", "quiz", "midterm", "finals"},
		Reply:    "For exam preparation:\n- Start with past papers to learn the question style.\n- Use active recall instead of re-reading notes.\n- Space your revision over several days.\n- Sleep well the night before; it helps memory consolidation.\nWould you like a practice quiz on one of your lectures?",
	},
	{
		Category: CategoryStudyTips,
		Keywords: []string{"study", "studying", "tips", "learn", "memorize", "memorise", "focus", "revise", "revision", "concentrate"},
		Reply:    "Some study techniques that work well:\n- Pomodoro: 25 minutes of focus, 5 minutes of rest.\n- Feynman technique: explain the idea in simple words.\n- Spaced repetition for facts and definitions.\n- Interleave subjects instead of blocking one for hours.",
	},
	{
		Category: CategorySchedule,
		Keywords: []string{"schedule", "plan", "planner", "timetable", "deadline", "deadlines", "calendar", "organize", "organise"},
		Reply:    "Let's build a study plan. List your deadlines, estimate hours per subject, then block two or three focused sessions per day with the hardest subject first. Leave one evening free each week to catch up.",
	},
	{
		Category: CategoryMath,
		Keywords: []string{"math", "maths", "calculate", "equation", "equations", "solve", "algebra", "calculus", "derivative", "integral", "formula"},
		Reply:    "For math problems, write down what is given and what is asked, pick the relevant formula, and work step by step, checking units at each stage. Share the problem and I'll walk through it with you.",
	},
	{
		Category: CategoryMotivation,
		Keywords: []string{"motivation", "motivated", "unmotivated", "stressed", "stress", "tired", "overwhelmed", "procrastinate", "procrastinating", "give up"},
		Reply:    "It's normal to feel this way. Break the next task into something you can finish in ten minutes and start there; momentum builds quickly. You've already made progress by asking for help.",
	},
}

// FallbackReply answers prompts that match no rule.
const FallbackReply = "That's a good question. I can help with lecture summaries, exam preparation, study techniques, scheduling, math problems, and motivation. Could you tell me a bit more about what you need?"

// Classify runs the cascade over prompt and returns the winning response.
func Classify(prompt string) Response {
	words, lowered := tokenize(prompt)
	for _, r := range Cascade {
		if r.matches(words, lowered) {
			return Response{Category: r.Category, Text: r.Reply}
		}
	}
	return Response{Category: CategoryFallback, Text: FallbackReply}
}

func (r Rule) matches(words map[string]struct{}, lowered string) bool {
	for _, k := range r.Keywords {
		if strings.ContainsAny(k, " ;") {
			if strings.Contains(lowered, k) {
				return true
			}
			continue
		}
		if _, ok := words[k]; ok {
			return true
		}
	}
	return false
}

func tokenize(prompt string) (map[string]struct{}, string) {
	lowered := strings.ToLower(prompt)
	fields := strings.FieldsFunc(lowered, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	words := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		words[f] = struct{}{}
	}
	return words, lowered
}
