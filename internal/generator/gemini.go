package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/helloclass/helloclass-lms/internal/exam"
	"github.com/helloclass/helloclass-lms/internal/metrics"
)

const DefaultModel = "gemini-2.5-flash"

var ErrEmptyResponse = errors.New("model returned no text")

// contentGenerator is the slice of *genai.Models this package calls.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Gemini struct {
	models contentGenerator
	model  string
}

func New(ctx context.Context, apiKey, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return newGemini(client.Models, model), nil
}

func newGemini(m contentGenerator, model string) *Gemini {
	if model == "" {
		model = DefaultModel
	}
	return &Gemini{models: m, model: model}
}

var questionSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"text":         {Type: genai.TypeString, Description: "The question text"},
			"options":      {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}, Description: "Array of 4 options"},
			"correctIndex": {Type: genai.TypeInteger, Description: "Index of the correct option (0-3)"},
			"explanation":  {Type: genai.TypeString, Description: "Short explanation of why the answer is correct"},
			"difficulty":   {Type: genai.TypeInteger},
		},
		Required: []string{"text", "options", "correctIndex", "explanation", "difficulty"},
	},
}

// Generate asks the model for cfg.QuestionCount multiple choice questions.
// Items that do not have four options and an in-range answer are dropped.
func (g *Gemini) Generate(ctx context.Context, cfg exam.ExamConfig) ([]exam.Question, error) {
	start := time.Now()
	qs, err := g.generate(ctx, cfg)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.GenerationDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	return qs, err
}

func (g *Gemini) generate(ctx context.Context, cfg exam.ExamConfig) ([]exam.Question, error) {
	subject := Sanitize(cfg.Subject)
	topic := Sanitize(cfg.Topic)
	level := Sanitize(cfg.Level)

	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(questionPrompt(subject, topic, level, cfg)), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   questionSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return nil, ErrEmptyResponse
	}
	qs, dropped, err := parseQuestions(text, subject, topic, level)
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		log.Printf("generator: dropped %d malformed questions", dropped)
	}
	return qs, nil
}

func questionPrompt(subject, topic, level string, cfg exam.ExamConfig) string {
	var ctxLines []string
	ctxLines = append(ctxLines, fmt.Sprintf("Subject: %q", subject))
	if topic != "" {
		ctxLines = append(ctxLines, fmt.Sprintf("Specific Topic: %q", topic))
	}
	if level != "" {
		ctxLines = append(ctxLines, fmt.Sprintf("Grade Level / Proficiency: %q", level))
	} else {
		ctxLines = append(ctxLines, "Target Audience: Middle School")
	}
	difficulty := cfg.Difficulty
	if difficulty == 0 {
		difficulty = exam.DefaultDifficulty
	}
	return fmt.Sprintf(`SYSTEM: You are an educational assistant. You must ONLY generate JSON.
TASK: Generate %d multiple choice questions based on the following context:
%s

Difficulty level: %d (1=Easy, 5=Hard).
Language: Turkish.
Output Format: Pure JSON array.`, cfg.QuestionCount, strings.Join(ctxLines, "\n"), difficulty)
}

type rawQuestion struct {
	Text         string   `json:"text"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
	Explanation  string   `json:"explanation"`
	Difficulty   int      `json:"difficulty"`
}

func parseQuestions(text, subject, topic, level string) (qs []exam.Question, dropped int, err error) {
	var raw []rawQuestion
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, 0, fmt.Errorf("decode questions: %w", err)
	}
	qs = make([]exam.Question, 0, len(raw))
	for _, r := range raw {
		q := exam.Question{
			ID:           "gen_" + uuid.NewString(),
			Subject:      subject,
			Topic:        topic,
			Level:        level,
			Text:         strings.TrimSpace(r.Text),
			Options:      r.Options,
			CorrectIndex: r.CorrectIndex,
			Explanation:  r.Explanation,
			Difficulty:   r.Difficulty,
		}
		if !q.Valid() || q.Text == "" {
			dropped++
			continue
		}
		if q.Difficulty < 1 || q.Difficulty > 5 {
			q.Difficulty = exam.DefaultDifficulty
		}
		qs = append(qs, q)
	}
	return qs, dropped, nil
}

const explainFallback = "Açıklama alınamadı."

// Explain asks for a short child-friendly note on why correct answers question.
// wrong is the option the candidate picked, or "" to skip that part.
func (g *Gemini) Explain(ctx context.Context, question, correct, wrong string) (string, error) {
	prompt := fmt.Sprintf("Explain simply (for a child) why %q is the correct answer for the question: %q.\n",
		Sanitize(correct), Sanitize(question))
	if wrong != "" {
		prompt += fmt.Sprintf("Also explain why %q is incorrect.\n", Sanitize(wrong))
	}
	prompt += "Keep it under 3 sentences. Language: Turkish."

	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("explain: %w", err)
	}
	if text := strings.TrimSpace(resp.Text()); text != "" {
		return text, nil
	}
	return explainFallback, nil
}

// Sanitize strips characters that could break out of a quoted prompt value.
func Sanitize(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		switch r {
		case '"', '\\', '{', '}', '\n', '\r':
			return ' '
		}
		return r
	}, s))
}
