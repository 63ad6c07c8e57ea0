package exam

import "time"

// Joker inventory item ids.
const (
	ItemJoker5050 = "joker_5050"
	ItemJokerSkip = "joker_skip"
)

const (
	OptionCount       = 4
	Unanswered        = -1
	DefaultDifficulty = 3
)

type Question struct {
	ID                  string   `json:"id"`
	Subject             string   `json:"subject"`
	Topic               string   `json:"topic,omitempty"`
	Level               string   `json:"level,omitempty"`
	Text                string   `json:"text"`
	Options             []string `json:"options"`
	CorrectIndex        int      `json:"correct_index"`
	Explanation         string   `json:"explanation"`
	Difficulty          int      `json:"difficulty"` // 1-5
	ImageURL            string   `json:"image_url,omitempty"`
	OptionImages        []string `json:"option_images,omitempty"`
	ExplanationImageURL string   `json:"explanation_image_url,omitempty"`
}

// Valid reports whether q has exactly four options and an in-range answer.
func (q Question) Valid() bool {
	return len(q.Options) == OptionCount && q.CorrectIndex >= 0 && q.CorrectIndex < OptionCount
}

// ExamConfig is the request for an AI-generated question set.
type ExamConfig struct {
	Subject         string `json:"subject" validate:"required,max=120"`
	Topic           string `json:"topic,omitempty" validate:"max=120"`
	Level           string `json:"level,omitempty" validate:"max=60"`
	QuestionCount   int    `json:"question_count" validate:"min=5,max=50"`
	DurationMinutes int    `json:"duration_minutes" validate:"min=1,max=120"`
	Difficulty      int    `json:"difficulty,omitempty" validate:"omitempty,min=1,max=5"`
}

type Result struct {
	Title          string     `json:"title,omitempty"`
	Score          int        `json:"score"`
	CorrectCount   int        `json:"correct_count"`
	TotalQuestions int        `json:"total_questions"`
	Questions      []Question `json:"questions"`
	UserAnswers    []int      `json:"user_answers"`
}

type ExamStatus string

const (
	StatusDraft     ExamStatus = "DRAFT"
	StatusPending   ExamStatus = "PENDING"
	StatusPublished ExamStatus = "PUBLISHED"
	StatusArchived  ExamStatus = "ARCHIVED"
)

// Exam is a pre-authored marketplace question set.
type Exam struct {
	ID              string     `json:"id"`
	Title           string     `json:"title" validate:"required,max=200"`
	Description     string     `json:"description,omitempty"`
	Subject         string     `json:"subject" validate:"required"`
	Topic           string     `json:"topic,omitempty"`
	Level           string     `json:"level,omitempty"`
	CreatorID       string     `json:"creator_id"`
	CreatorName     string     `json:"creator_name,omitempty"`
	Price           int        `json:"price" validate:"min=0"`
	DurationMinutes int        `json:"duration_minutes" validate:"min=0,max=240"`
	Status          ExamStatus `json:"status"`
	Rating          float64    `json:"rating"`
	Sales           int        `json:"sales"`
	Deleted         bool       `json:"is_deleted,omitempty"`
	Questions       []Question `json:"questions"`

	CreatedAt int64 `json:"created_at,omitempty"`
}

type ExamSummary struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Subject         string     `json:"subject"`
	Topic           string     `json:"topic,omitempty"`
	Level           string     `json:"level,omitempty"`
	CreatorID       string     `json:"creator_id"`
	CreatorName     string     `json:"creator_name,omitempty"`
	Price           int        `json:"price"`
	QuestionCount   int        `json:"question_count"`
	DurationMinutes int        `json:"duration_minutes"`
	Status          ExamStatus `json:"status"`
	Rating          float64    `json:"rating"`
	Sales           int        `json:"sales"`
	CreatedAt       int64      `json:"created_at"`
}

// User is the caller identity as far as session start is concerned.
type User struct {
	ID   string
	Role string
}

// HistoryItem is one finished exam on a user's profile.
type HistoryItem struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Subject        string    `json:"subject"`
	Score          int       `json:"score"`
	CorrectCount   int       `json:"correct_count"`
	TotalQuestions int       `json:"total_questions"`
	CompletedAt    time.Time `json:"completed_at"`
}
