package tutor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vidyadost/vidyadost/internal/llm"
	"github.com/vidyadost/vidyadost/internal/pedagogy"
)

const (
	answerMaxTokens   = 1024
	answerTemperature = 0.7
)

var styleText = map[pedagogy.Style]string{
	pedagogy.StyleNormal:     "Explain normally in concise, clear steps.",
	pedagogy.StyleRealWorld:  "Explain using real-world examples tailored to the topic and age.",
	pedagogy.StyleImage:      "Explain briefly and also describe one image that would help understanding; you must also emit the image keyword block.",
	pedagogy.StyleStepByStep: "Explain step-by-step with short checks after each step.",
}

// promptContext is everything the system prompt is built from.
type promptContext struct {
	Profile     Profile
	Session     *Session
	Style       pedagogy.Style
	AltLanguage string
}

// Turn is one prior exchange sent as conversational context.
type Turn struct {
	User      string
	Assistant string
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}

func systemPrompt(pc promptContext) string {
	var grade, subject, topic string
	if pc.Session != nil {
		grade, subject, topic = pc.Session.Grade, pc.Session.Subject, pc.Session.Topic
	}
	age := ""
	if pc.Profile.Age > 0 {
		age = strconv.Itoa(pc.Profile.Age)
	}
	alt := pc.AltLanguage
	if alt == "" {
		alt = "none"
	}
	style, ok := styleText[pc.Style]
	if !ok {
		style = "Explain normally."
	}

	var b strings.Builder
	b.WriteString("You are a friendly, patient teacher. Explain concepts as clearly and simply as possible so the student truly understands.\n\n")
	fmt.Fprintf(&b, "Student context:\nuserAge: %s\nuserClass: %s\nsubject: %s\ntopic: %s\ngrade: %s\naltLanguage: %s\n\n",
		orUnknown(age), orUnknown(pc.Profile.Standard), orUnknown(subject), orUnknown(topic), orUnknown(grade), alt)
	b.WriteString(`Adapt vocabulary, depth and examples to these values:
- Below age 10 use very simple words, short sentences and familiar examples.
- For middle school give a little more detail but keep the language simple.
- For higher grades use clear logic and correct terms without needless complexity.
- Stay on the given subject and topic. Do not introduce concepts beyond the grade or assume knowledge beyond the class.

Formatting:
- Plain text only. No markdown, asterisks, bold, italics, decorative symbols or emojis.
- Short paragraphs and short sentences. Use simple numbering like 1. 2. 3. when needed.

Structure:
- Start with a clear explanation, give one simple example suited to the student's age, then ask one short checking question.
- Keep it concise, at most a few lines. Do not sound like a textbook and do not repeat the question.

`)
	b.WriteString("Language:\nIf altLanguage is not \"none\", answer mainly in that language with short sentences and age-appropriate terms.\n\n")
	fmt.Fprintf(&b, "Current learning style:\n%s\n\n", style)
	fmt.Fprintf(&b, `Image keyword (when you mention an image or the image style is active):
End with one final line exactly like: %s {"image_keyword": "<3-6 word keyword>"}
The keyword must contain the exact topic name (for example "Water Cycle diagram") and describe a simple, kid-friendly educational diagram for the grade and subject.

`, metaPrefix)
	b.WriteString("Produce the answer in logical order from start to finish, in the order it should be spoken.")
	return b.String()
}

func buildRequest(pc promptContext, history []Turn, question string) llm.Request {
	msgs := make([]llm.Message, 0, 2*len(history)+1)
	for _, t := range history {
		if t.User != "" {
			msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: t.User})
		}
		if t.Assistant != "" {
			msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: t.Assistant})
		}
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: question})
	return llm.Request{
		System:      systemPrompt(pc),
		Messages:    msgs,
		MaxTokens:   answerMaxTokens,
		Temperature: answerTemperature,
	}
}

// imageQuery combines the keyword with the session context.
func imageQuery(keyword string, s *Session) string {
	parts := []string{keyword}
	if s != nil {
		if s.Grade != "" {
			parts = append(parts, "grade "+s.Grade)
		}
		parts = append(parts, s.Subject, s.Topic)
	}
	parts = append(parts, "kid-friendly educational diagram simple illustration")
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

func imageNotice(label, url string) string {
	if url == "" {
		return fmt.Sprintf("Let me explain %s clearly.", label)
	}
	return fmt.Sprintf("Can you see the image on the right? It shows %s.\n\nImage URL: %s", label, url)
}
