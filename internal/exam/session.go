package exam

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMinDuration is the floor applied to every session duration, in minutes.
const DefaultMinDuration = 5

const tickInterval = time.Second

type State int

const (
	StateNotStarted State = iota
	StateActive
	StateFinished
	StateAbandoned
)

var stateNames = map[State]string{
	StateNotStarted: "NOT_STARTED",
	StateActive:     "ACTIVE",
	StateFinished:   "FINISHED",
	StateAbandoned:  "ABANDONED",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for st, name := range stateNames {
		if name == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", b)
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool { return s == StateFinished || s == StateAbandoned }

var transitions = map[State][]State{
	StateNotStarted: {StateActive},
	StateActive:     {StateFinished, StateAbandoned},
}

// Trigger names the event that ended a session.
type Trigger string

const (
	TriggerTimer    Trigger = "timer"
	TriggerExplicit Trigger = "explicit"
	TriggerAdvance  Trigger = "advance"
	TriggerSkip     Trigger = "skip"
)

// Inventory holds the caller's consumable jokers. The session only reads counts
// and asks for consumption; it never owns inventory state.
type Inventory interface {
	Count(ctx context.Context, userID, itemID string) (int, error)
	Consume(ctx context.Context, userID, itemID string) error
}

// ResultSink receives each finished result exactly once. Failures are the sink's
// business; the session does not wait on or retry it.
type ResultSink interface {
	Submit(ctx context.Context, userID string, r Result)
}

// Shuffler is satisfied by *rand.Rand.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

// Clock abstracts wall time and the tick source so tests can drive the timer.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) (<-chan time.Time, func())
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

type Option func(*Session)

func WithID(id string) Option { return func(s *Session) { s.id = id } }

func WithUser(userID string) Option { return func(s *Session) { s.userID = userID } }

func WithClock(c Clock) Option { return func(s *Session) { s.clock = c } }

func WithRand(r Shuffler) Option { return func(s *Session) { s.rnd = r } }

func WithInventory(inv Inventory) Option { return func(s *Session) { s.inventory = inv } }

func WithSink(sink ResultSink) Option { return func(s *Session) { s.sink = sink } }

// WithMinDuration overrides the duration floor, in minutes.
func WithMinDuration(minutes int) Option { return func(s *Session) { s.minDuration = minutes } }

// WithSource tags the session with where its questions came from ("ai" or "market").
func WithSource(source string) Option { return func(s *Session) { s.source = source } }

func WithTitle(title string) Option { return func(s *Session) { s.title = title } }

// WithOnFinish registers f to run once after the result has been emitted.
func WithOnFinish(f func(Trigger)) Option { return func(s *Session) { s.onFinish = f } }

type jokerState struct {
	used5050 bool
	hidden   []int
}

// Session is one timed attempt at a fixed question set.
type Session struct {
	mu sync.Mutex

	id     string
	userID string
	source string
	title  string

	questions []Question
	answers   []int
	current   int
	jokers    map[int]*jokerState

	state     State
	deadline  time.Time
	startedAt time.Time
	endedAt   time.Time
	result    *Result

	clock       Clock
	rnd         Shuffler
	inventory   Inventory
	sink        ResultSink
	minDuration int
	onFinish    func(Trigger)

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// StartSession activates a session over questions and starts its countdown.
// The deadline is fixed here; ticks only recompute the remaining time from it.
func StartSession(questions []Question, durationMinutes int, opts ...Option) (*Session, error) {
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}
	for i, q := range questions {
		if !q.Valid() {
			return nil, fmt.Errorf("%w: #%d", ErrInvalidQuestion, i+1)
		}
	}
	s := &Session{
		clock:       realClock{},
		minDuration: DefaultMinDuration,
		jokers:      map[int]*jokerState{},
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.rnd == nil {
		s.rnd = rand.New(rand.NewSource(s.clock.Now().UnixNano()))
	}

	s.questions = append([]Question(nil), questions...)
	s.answers = make([]int, len(questions))
	for i := range s.answers {
		s.answers[i] = Unanswered
	}
	if durationMinutes < s.minDuration {
		durationMinutes = s.minDuration
	}
	s.startedAt = s.clock.Now()
	s.deadline = s.startedAt.Add(time.Duration(durationMinutes) * time.Minute)

	if err := s.transition(StateActive); err != nil {
		return nil, err
	}
	ticks, stopTicker := s.clock.NewTicker(tickInterval)
	go s.run(ticks, stopTicker)
	return s, nil
}

func (s *Session) transition(to State) error {
	for _, allowed := range transitions[s.state] {
		if allowed == to {
			s.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrBadTransition, s.state, to)
}

func (s *Session) run(ticks <-chan time.Time, stopTicker func()) {
	defer stopTicker()
	for {
		select {
		case <-s.stop:
			return
		case <-ticks:
			if s.tick(s.clock.Now()) {
				return
			}
		}
	}
}

// tick reports true once the session is terminal.
func (s *Session) tick(now time.Time) bool {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return true
	}
	if remainingSeconds(s.deadline, now) > 0 {
		s.mu.Unlock()
		return false
	}
	res := s.finishLocked()
	s.mu.Unlock()
	s.emit(context.Background(), TriggerTimer, res)
	return true
}

func remainingSeconds(deadline, now time.Time) int {
	d := deadline.Sub(now)
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

func (s *Session) activeLocked() error {
	switch s.state {
	case StateActive:
		return nil
	case StateAbandoned:
		return ErrAbandoned
	default:
		return ErrNotActive
	}
}

func (s *Session) checkIndexLocked(q int) error {
	if q < 0 || q >= len(s.questions) {
		return ErrQuestionIndex
	}
	return nil
}

// SelectAnswer stores opt for question q. Unanswered clears the answer.
func (s *Session) SelectAnswer(q, opt int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.activeLocked(); err != nil {
		return err
	}
	if err := s.checkIndexLocked(q); err != nil {
		return err
	}
	if opt < Unanswered || opt >= len(s.questions[q].Options) {
		return ErrInvalidAnswer
	}
	s.answers[q] = opt
	return nil
}

func (s *Session) jokerLocked(q int) *jokerState {
	js, ok := s.jokers[q]
	if !ok {
		js = &jokerState{}
		s.jokers[q] = js
	}
	return js
}

func (s *Session) requestJokerLocked(ctx context.Context, itemID string) error {
	if s.inventory == nil {
		return ErrNoJoker
	}
	n, err := s.inventory.Count(ctx, s.userID, itemID)
	if err != nil {
		return fmt.Errorf("count %s: %w", itemID, err)
	}
	if n <= 0 {
		return ErrNoJoker
	}
	if err := s.inventory.Consume(ctx, s.userID, itemID); err != nil {
		return fmt.Errorf("consume %s: %w", itemID, err)
	}
	return nil
}

// Apply5050Joker hides two of the three wrong options of the current question q
// and returns the hidden indexes. An answer pointing at a hidden option is cleared.
func (s *Session) Apply5050Joker(ctx context.Context, q int) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.activeLocked(); err != nil {
		return nil, err
	}
	if q != s.current {
		return nil, ErrQuestionIndex
	}
	js := s.jokerLocked(q)
	if js.used5050 {
		return nil, ErrJokerUsed
	}
	if err := s.requestJokerLocked(ctx, ItemJoker5050); err != nil {
		return nil, err
	}

	question := s.questions[q]
	wrong := make([]int, 0, len(question.Options)-1)
	for i := range question.Options {
		if i != question.CorrectIndex {
			wrong = append(wrong, i)
		}
	}
	s.rnd.Shuffle(len(wrong), func(i, j int) { wrong[i], wrong[j] = wrong[j], wrong[i] })
	hidden := append([]int(nil), wrong[:2]...)
	sort.Ints(hidden)

	js.used5050 = true
	js.hidden = hidden
	for _, h := range hidden {
		if s.answers[q] == h {
			s.answers[q] = Unanswered
		}
	}
	return append([]int(nil), hidden...), nil
}

// ApplySkipJoker marks the current question correct and moves on. It reports
// last=true when q was the final question; finishing is then up to the caller.
func (s *Session) ApplySkipJoker(ctx context.Context, q int) (last bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.activeLocked(); err != nil {
		return false, err
	}
	if q != s.current {
		return false, ErrQuestionIndex
	}
	if err := s.requestJokerLocked(ctx, ItemJokerSkip); err != nil {
		return false, err
	}
	s.answers[q] = s.questions[q].CorrectIndex
	if s.current < len(s.questions)-1 {
		s.moveLocked(s.current + 1)
		return false, nil
	}
	return true, nil
}

func (s *Session) moveLocked(i int) {
	s.current = i
	delete(s.jokers, i)
}

// Advance moves to the next question, or finishes the session from the last one.
// The returned result is nil unless this call finished the session.
func (s *Session) Advance(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	if err := s.activeLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if s.current < len(s.questions)-1 {
		s.moveLocked(s.current + 1)
		s.mu.Unlock()
		return nil, nil
	}
	s.mu.Unlock()
	return s.finish(ctx, TriggerAdvance)
}

// Finish scores the attempt. Only the first call emits the result; later calls
// return the stored result unchanged.
func (s *Session) Finish(ctx context.Context) (*Result, error) {
	return s.finish(ctx, TriggerExplicit)
}

// FinishAfterSkip finishes a session whose last question was skipped.
func (s *Session) FinishAfterSkip(ctx context.Context) (*Result, error) {
	return s.finish(ctx, TriggerSkip)
}

func (s *Session) finish(ctx context.Context, trig Trigger) (*Result, error) {
	s.mu.Lock()
	switch s.state {
	case StateFinished:
		r := s.result.clone()
		s.mu.Unlock()
		return &r, nil
	case StateAbandoned:
		s.mu.Unlock()
		return nil, ErrAbandoned
	}
	if len(s.questions) == 0 {
		s.mu.Unlock()
		return nil, ErrNoQuestions
	}
	res := s.finishLocked()
	s.mu.Unlock()
	s.emit(ctx, trig, res)
	r := res.clone()
	return &r, nil
}

func (s *Session) finishLocked() *Result {
	correct, score := Score(s.questions, s.answers)
	res := &Result{
		Title:          s.title,
		Score:          score,
		CorrectCount:   correct,
		TotalQuestions: len(s.questions),
		Questions:      append([]Question(nil), s.questions...),
		UserAnswers:    append([]int(nil), s.answers...),
	}
	if err := s.transition(StateFinished); err != nil {
		log.Printf("exam: session %s: %v", s.id, err)
	}
	s.result = res
	s.endedAt = s.clock.Now()
	s.stopLocked()
	return res
}

func (s *Session) emit(ctx context.Context, trig Trigger, res *Result) {
	log.Printf("exam: session %s finished (%s) score=%d correct=%d/%d",
		s.id, trig, res.Score, res.CorrectCount, res.TotalQuestions)
	if s.sink != nil {
		s.sink.Submit(context.WithoutCancel(ctx), s.userID, res.clone())
	}
	if s.onFinish != nil {
		s.onFinish(trig)
	}
}

// Abandon stops the countdown without scoring. Nothing is emitted. It reports
// whether this call ended the session.
func (s *Session) Abandon() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transition(StateAbandoned); err != nil {
		return false
	}
	s.endedAt = s.clock.Now()
	s.stopLocked()
	return true
}

func (s *Session) stopLocked() {
	s.stopOnce.Do(func() {
		if s.stop != nil {
			close(s.stop)
		}
		if s.done != nil {
			close(s.done)
		}
	})
}

func (s *Session) ID() string     { return s.id }
func (s *Session) UserID() string { return s.userID }
func (s *Session) Source() string { return s.source }

// Done is closed once the session is finished or abandoned.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// EndedAt is zero while the session is live.
func (s *Session) EndedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedAt
}

func (s *Session) Result() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return Result{}, false
	}
	return s.result.clone(), true
}

func (r *Result) clone() Result {
	out := *r
	out.Questions = append([]Question(nil), r.Questions...)
	out.UserAnswers = append([]int(nil), r.UserAnswers...)
	return out
}

// QuestionView is a question as shown to the candidate. Answer data is only
// present once the session is finished.
type QuestionView struct {
	ID                  string   `json:"id"`
	Subject             string   `json:"subject"`
	Topic               string   `json:"topic,omitempty"`
	Level               string   `json:"level,omitempty"`
	Text                string   `json:"text"`
	Options             []string `json:"options"`
	Difficulty          int      `json:"difficulty"`
	ImageURL            string   `json:"image_url,omitempty"`
	OptionImages        []string `json:"option_images,omitempty"`
	CorrectIndex        *int     `json:"correct_index,omitempty"`
	Explanation         string   `json:"explanation,omitempty"`
	ExplanationImageURL string   `json:"explanation_image_url,omitempty"`
}

type View struct {
	ID               string         `json:"id"`
	Title            string         `json:"title,omitempty"`
	Source           string         `json:"source,omitempty"`
	State            State          `json:"state"`
	CurrentIndex     int            `json:"current_index"`
	RemainingSeconds int            `json:"remaining_seconds"`
	Deadline         time.Time      `json:"deadline"`
	Questions        []QuestionView `json:"questions"`
	Answers          []int          `json:"answers"`
	HiddenOptions    []int          `json:"hidden_options"`
	Joker5050Used    bool           `json:"joker_5050_used"`
	Result           *Result        `json:"result,omitempty"`
}

func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	reveal := s.state == StateFinished
	v := View{
		ID:            s.id,
		Title:         s.title,
		Source:        s.source,
		State:         s.state,
		CurrentIndex:  s.current,
		Deadline:      s.deadline,
		Answers:       append([]int(nil), s.answers...),
		HiddenOptions: []int{},
		Questions:     make([]QuestionView, len(s.questions)),
	}
	if s.state == StateActive {
		v.RemainingSeconds = remainingSeconds(s.deadline, s.clock.Now())
	}
	if js, ok := s.jokers[s.current]; ok {
		v.Joker5050Used = js.used5050
		v.HiddenOptions = append(v.HiddenOptions, js.hidden...)
	}
	for i, q := range s.questions {
		qv := QuestionView{
			ID:           q.ID,
			Subject:      q.Subject,
			Topic:        q.Topic,
			Level:        q.Level,
			Text:         q.Text,
			Options:      append([]string(nil), q.Options...),
			Difficulty:   q.Difficulty,
			ImageURL:     q.ImageURL,
			OptionImages: q.OptionImages,
		}
		if reveal {
			ci := q.CorrectIndex
			qv.CorrectIndex = &ci
			qv.Explanation = q.Explanation
			qv.ExplanationImageURL = q.ExplanationImageURL
		}
		v.Questions[i] = qv
	}
	if s.result != nil {
		r := s.result.clone()
		v.Result = &r
	}
	return v
}
