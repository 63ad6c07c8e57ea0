package exam_test

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/helloclass/helloclass-lms/internal/exam"
)

/* ---------------- fakes ---------------- */

type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	ticks chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		now:   time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		ticks: make(chan time.Time),
	}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(time.Duration) (<-chan time.Time, func()) {
	return c.ticks, func() {}
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Tick delivers one tick if the session loop is still listening.
func (c *fakeClock) Tick(t *testing.T) bool {
	t.Helper()
	select {
	case c.ticks <- c.Now():
		return true
	case <-time.After(200 * time.Millisecond):
		return false
	}
}

type fakeInventory struct {
	mu         sync.Mutex
	items      map[string]int
	consumeErr error
	consumed   []string
}

func newFakeInventory(items map[string]int) *fakeInventory {
	return &fakeInventory{items: items}
}

func (f *fakeInventory) Count(_ context.Context, _, itemID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[itemID], nil
}

func (f *fakeInventory) Consume(_ context.Context, _, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.consumeErr != nil {
		return f.consumeErr
	}
	f.items[itemID]--
	f.consumed = append(f.consumed, itemID)
	return nil
}

type fakeSink struct {
	mu      sync.Mutex
	results []exam.Result
	got     chan struct{}
}

func newFakeSink() *fakeSink { return &fakeSink{got: make(chan struct{}, 8)} }

func (f *fakeSink) Submit(_ context.Context, _ string, r exam.Result) {
	f.mu.Lock()
	f.results = append(f.results, r)
	f.mu.Unlock()
	f.got <- struct{}{}
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.results)
}

func questions(n int) []exam.Question {
	out := make([]exam.Question, n)
	for i := range out {
		out[i] = exam.Question{
			ID:           string(rune('a' + i)),
			Subject:      "Matematik",
			Text:         "Q",
			Options:      []string{"A", "B", "C", "D"},
			CorrectIndex: i % 4,
			Difficulty:   exam.DefaultDifficulty,
		}
	}
	return out
}

func start(t *testing.T, qs []exam.Question, opts ...exam.Option) (*exam.Session, *fakeClock, *fakeSink) {
	t.Helper()
	clk := newFakeClock()
	sink := newFakeSink()
	base := []exam.Option{
		exam.WithClock(clk),
		exam.WithSink(sink),
		exam.WithUser("u1"),
		exam.WithRand(rand.New(rand.NewSource(7))),
	}
	s, err := exam.StartSession(qs, 10, append(base, opts...)...)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	t.Cleanup(func() { s.Abandon() })
	return s, clk, sink
}

/* ---------------- start ---------------- */

func TestStartSession_EmptyRefused(t *testing.T) {
	if _, err := exam.StartSession(nil, 10); !errors.Is(err, exam.ErrNoQuestions) {
		t.Fatalf("want ErrNoQuestions, got %v", err)
	}
}

func TestStartSession_InvalidQuestionRefused(t *testing.T) {
	qs := questions(2)
	qs[1].Options = qs[1].Options[:3]
	if _, err := exam.StartSession(qs, 10); !errors.Is(err, exam.ErrInvalidQuestion) {
		t.Fatalf("want ErrInvalidQuestion, got %v", err)
	}
}

func TestStartSession_InitialState(t *testing.T) {
	s, _, _ := start(t, questions(3))
	v := s.Snapshot()
	if v.State != exam.StateActive {
		t.Fatalf("state = %s", v.State)
	}
	if v.CurrentIndex != 0 {
		t.Fatalf("current = %d", v.CurrentIndex)
	}
	for i, a := range v.Answers {
		if a != exam.Unanswered {
			t.Fatalf("answer[%d] = %d, want -1", i, a)
		}
	}
	if v.Joker5050Used || len(v.HiddenOptions) != 0 {
		t.Fatalf("joker state not clear: %+v", v)
	}
	for _, q := range v.Questions {
		if q.CorrectIndex != nil || q.Explanation != "" {
			t.Fatalf("answer data leaked before finish: %+v", q)
		}
	}
}

func TestStartSession_DurationClamped(t *testing.T) {
	clk := newFakeClock()
	s, err := exam.StartSession(questions(1), 1, exam.WithClock(clk))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Abandon()
	v := s.Snapshot()
	if got, want := v.RemainingSeconds, exam.DefaultMinDuration*60; got != want {
		t.Fatalf("remaining = %d, want %d", got, want)
	}
	if !v.Deadline.Equal(clk.Now().Add(5 * time.Minute)) {
		t.Fatalf("deadline = %v", v.Deadline)
	}
}

/* ---------------- timer ---------------- */

func TestTimer_RemainingFromDeadline(t *testing.T) {
	s, clk, _ := start(t, questions(2))
	clk.Advance(90*time.Second + 300*time.Millisecond)
	if got := s.Snapshot().RemainingSeconds; got != 510 {
		t.Fatalf("remaining = %d, want 510 (ceil)", got)
	}
}

func TestTimer_AutoFinishOnce(t *testing.T) {
	qs := questions(2)
	s, clk, sink := start(t, qs)
	if err := s.SelectAnswer(0, qs[0].CorrectIndex); err != nil {
		t.Fatal(err)
	}

	clk.Advance(9 * time.Minute)
	if !clk.Tick(t) {
		t.Fatal("session loop stopped early")
	}
	if s.State() != exam.StateActive {
		t.Fatalf("finished before deadline")
	}

	clk.Advance(time.Minute)
	if !clk.Tick(t) {
		t.Fatal("tick not delivered")
	}
	select {
	case <-sink.got:
	case <-time.After(time.Second):
		t.Fatal("timer did not finish the session")
	}
	<-s.Done()

	if clk.Tick(t) {
		t.Fatal("ticker still running after finish")
	}
	r, err := s.Finish(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sink.count() != 1 {
		t.Fatalf("sink got %d results, want 1", sink.count())
	}
	if r.Score != 50 || r.CorrectCount != 1 {
		t.Fatalf("result = %+v", r)
	}
}

func TestAbandon_EmitsNothing(t *testing.T) {
	s, clk, sink := start(t, questions(2))
	s.Abandon()
	<-s.Done()

	if clk.Tick(t) {
		t.Fatal("ticker still running after abandon")
	}
	if _, err := s.Finish(context.Background()); !errors.Is(err, exam.ErrAbandoned) {
		t.Fatalf("want ErrAbandoned, got %v", err)
	}
	if err := s.SelectAnswer(0, 1); !errors.Is(err, exam.ErrAbandoned) {
		t.Fatalf("want ErrAbandoned, got %v", err)
	}
	if sink.count() != 0 {
		t.Fatalf("abandoned session emitted %d results", sink.count())
	}
}

/* ---------------- answers & scoring ---------------- */

func TestSelectAnswer(t *testing.T) {
	s, _, _ := start(t, questions(2))
	cases := []struct {
		q, opt int
		err    error
	}{
		{0, 2, nil},
		{0, 2, nil},
		{0, exam.Unanswered, nil},
		{1, 4, exam.ErrInvalidAnswer},
		{1, -2, exam.ErrInvalidAnswer},
		{2, 0, exam.ErrQuestionIndex},
	}
	for _, c := range cases {
		if err := s.SelectAnswer(c.q, c.opt); !errors.Is(err, c.err) {
			t.Fatalf("SelectAnswer(%d,%d) = %v, want %v", c.q, c.opt, err, c.err)
		}
	}
	if got := s.Snapshot().Answers[0]; got != exam.Unanswered {
		t.Fatalf("answer[0] = %d", got)
	}
}

func TestScore(t *testing.T) {
	qs := []exam.Question{
		{Options: []string{"A", "B", "C", "D"}, CorrectIndex: 1},
		{Options: []string{"A", "B", "C", "D"}, CorrectIndex: 0},
		{Options: []string{"A", "B", "C", "D"}, CorrectIndex: 3},
	}
	cases := []struct {
		answers        []int
		correct, score int
	}{
		{[]int{1, 0, 3}, 3, 100},
		{[]int{1, -1, -1}, 1, 33},
		{[]int{1, 0, -1}, 2, 67},
		{[]int{-1, -1, -1}, 0, 0},
		{[]int{1}, 1, 33},
	}
	for _, c := range cases {
		correct, score := exam.Score(qs, c.answers)
		if correct != c.correct || score != c.score {
			t.Fatalf("Score(%v) = %d,%d want %d,%d", c.answers, correct, score, c.correct, c.score)
		}
	}
	if c, s := exam.Score(nil, nil); c != 0 || s != 0 {
		t.Fatalf("empty score = %d,%d", c, s)
	}
}

func TestFinish_Scenario(t *testing.T) {
	qs := []exam.Question{
		{ID: "1", Options: []string{"A", "B", "C", "D"}, CorrectIndex: 1},
		{ID: "2", Options: []string{"A", "B", "C", "D"}, CorrectIndex: 0},
	}
	s, _, sink := start(t, qs)
	if err := s.SelectAnswer(0, 1); err != nil {
		t.Fatal(err)
	}
	r, err := s.Finish(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if r.CorrectCount != 1 || r.Score != 50 || r.TotalQuestions != 2 {
		t.Fatalf("result = %+v", r)
	}
	if r.UserAnswers[0] != 1 || r.UserAnswers[1] != exam.Unanswered {
		t.Fatalf("answers = %v", r.UserAnswers)
	}
	if sink.count() != 1 {
		t.Fatalf("sink count = %d", sink.count())
	}

	v := s.Snapshot()
	if v.Questions[0].CorrectIndex == nil || *v.Questions[0].CorrectIndex != 1 {
		t.Fatalf("finished view should reveal answers")
	}
}

func TestFinish_Idempotent(t *testing.T) {
	s, _, sink := start(t, questions(4))
	_ = s.SelectAnswer(0, 0)

	var wg sync.WaitGroup
	results := make([]*exam.Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := s.Finish(context.Background())
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = r
		}(i)
	}
	wg.Wait()
	if sink.count() != 1 {
		t.Fatalf("sink got %d results, want exactly 1", sink.count())
	}
	for _, r := range results {
		if r == nil || r.Score != results[0].Score || r.CorrectCount != results[0].CorrectCount {
			t.Fatalf("results differ: %+v vs %+v", r, results[0])
		}
	}
	if err := s.SelectAnswer(1, 1); !errors.Is(err, exam.ErrNotActive) {
		t.Fatalf("mutation after finish: %v", err)
	}
}

func TestFinish_ZeroSession(t *testing.T) {
	var s exam.Session
	if _, err := s.Finish(context.Background()); !errors.Is(err, exam.ErrNoQuestions) {
		t.Fatalf("want ErrNoQuestions, got %v", err)
	}
}

/* ---------------- advance ---------------- */

func TestAdvance(t *testing.T) {
	s, _, sink := start(t, questions(2))
	r, err := s.Advance(context.Background())
	if err != nil || r != nil {
		t.Fatalf("first advance: %v %v", r, err)
	}
	if got := s.Snapshot().CurrentIndex; got != 1 {
		t.Fatalf("current = %d", got)
	}
	r, err = s.Advance(context.Background())
	if err != nil || r == nil {
		t.Fatalf("advance from last should finish: %v %v", r, err)
	}
	if s.State() != exam.StateFinished || sink.count() != 1 {
		t.Fatalf("state=%s sink=%d", s.State(), sink.count())
	}
	if _, err := s.Advance(context.Background()); !errors.Is(err, exam.ErrNotActive) {
		t.Fatalf("advance after finish: %v", err)
	}
}

/* ---------------- jokers ---------------- */

func TestApply5050Joker(t *testing.T) {
	for seed := int64(0); seed < 50; seed++ {
		qs := questions(4)
		inv := newFakeInventory(map[string]int{exam.ItemJoker5050: 1})
		s, _, _ := start(t, qs, exam.WithInventory(inv), exam.WithRand(rand.New(rand.NewSource(seed))))

		q := int(seed % 4)
		for i := 0; i < q; i++ {
			if _, err := s.Advance(context.Background()); err != nil {
				t.Fatalf("seed %d: advance: %v", seed, err)
			}
		}
		hidden, err := s.Apply5050Joker(context.Background(), q)
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		if len(hidden) != 2 || hidden[0] == hidden[1] {
			t.Fatalf("seed %d: hidden = %v", seed, hidden)
		}
		for _, h := range hidden {
			if h == qs[q].CorrectIndex {
				t.Fatalf("seed %d: correct option %d hidden", seed, h)
			}
			if h < 0 || h >= exam.OptionCount {
				t.Fatalf("seed %d: hidden index %d out of range", seed, h)
			}
		}
		if len(inv.consumed) != 1 {
			t.Fatalf("seed %d: consumed %v", seed, inv.consumed)
		}
		s.Abandon()
	}
}

func TestApply5050Joker_ClearsHiddenAnswer(t *testing.T) {
	qs := questions(1) // correct index 0
	inv := newFakeInventory(map[string]int{exam.ItemJoker5050: 1})
	s, _, _ := start(t, qs, exam.WithInventory(inv))

	hidden, err := func() ([]int, error) {
		// pick a wrong answer first, then hide
		if err := s.SelectAnswer(0, 1); err != nil {
			return nil, err
		}
		return s.Apply5050Joker(context.Background(), 0)
	}()
	if err != nil {
		t.Fatal(err)
	}
	ans := s.Snapshot().Answers[0]
	wasHidden := hidden[0] == 1 || hidden[1] == 1
	if wasHidden && ans != exam.Unanswered {
		t.Fatalf("answer on hidden option kept: %d", ans)
	}
	if !wasHidden && ans != 1 {
		t.Fatalf("visible answer cleared: %d", ans)
	}
	v := s.Snapshot()
	if !v.Joker5050Used || len(v.HiddenOptions) != 2 {
		t.Fatalf("view joker state = %+v", v)
	}
}

func TestApply5050Joker_Rejections(t *testing.T) {
	inv := newFakeInventory(map[string]int{exam.ItemJoker5050: 5})
	s, _, _ := start(t, questions(2), exam.WithInventory(inv))

	if _, err := s.Apply5050Joker(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
	before := s.Snapshot()
	if _, err := s.Apply5050Joker(context.Background(), 0); !errors.Is(err, exam.ErrJokerUsed) {
		t.Fatalf("second use: %v", err)
	}
	after := s.Snapshot()
	if len(inv.consumed) != 1 {
		t.Fatalf("rejected call consumed inventory: %v", inv.consumed)
	}
	if before.HiddenOptions[0] != after.HiddenOptions[0] || before.HiddenOptions[1] != after.HiddenOptions[1] {
		t.Fatalf("hidden set changed on rejection")
	}

	empty := newFakeInventory(map[string]int{})
	s2, _, _ := start(t, questions(2), exam.WithInventory(empty))
	if _, err := s2.Apply5050Joker(context.Background(), 0); !errors.Is(err, exam.ErrNoJoker) {
		t.Fatalf("no inventory: %v", err)
	}
	if s2.Snapshot().Joker5050Used {
		t.Fatal("state mutated without inventory")
	}

	failing := newFakeInventory(map[string]int{exam.ItemJoker5050: 1})
	failing.consumeErr = errors.New("db down")
	s3, _, _ := start(t, questions(2), exam.WithInventory(failing))
	if _, err := s3.Apply5050Joker(context.Background(), 0); err == nil {
		t.Fatal("consume failure not reported")
	}
	if s3.Snapshot().Joker5050Used {
		t.Fatal("effect applied although consumption failed")
	}
	if _, err := s3.Apply5050Joker(context.Background(), 5); !errors.Is(err, exam.ErrQuestionIndex) {
		t.Fatalf("bad index: %v", err)
	}
}

func TestApply5050Joker_CurrentQuestionOnly(t *testing.T) {
	inv := newFakeInventory(map[string]int{exam.ItemJoker5050: 2})
	s, _, _ := start(t, questions(3), exam.WithInventory(inv))

	if _, err := s.Apply5050Joker(context.Background(), 1); !errors.Is(err, exam.ErrQuestionIndex) {
		t.Fatalf("joker ahead of current: %v", err)
	}
	if len(inv.consumed) != 0 {
		t.Fatalf("rejected joker consumed inventory: %v", inv.consumed)
	}
	if _, err := s.Apply5050Joker(context.Background(), 5); !errors.Is(err, exam.ErrQuestionIndex) {
		t.Fatalf("bad index: %v", err)
	}

	if _, err := s.Apply5050Joker(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Advance(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Apply5050Joker(context.Background(), 0); !errors.Is(err, exam.ErrQuestionIndex) {
		t.Fatalf("joker behind current: %v", err)
	}
	v := s.Snapshot()
	if v.CurrentIndex != 1 || v.Joker5050Used || len(v.HiddenOptions) != 0 {
		t.Fatalf("joker state carried to next question: %+v", v)
	}
	if _, err := s.Apply5050Joker(context.Background(), 1); err != nil {
		t.Fatalf("joker on new current question: %v", err)
	}
	if len(inv.consumed) != 2 {
		t.Fatalf("consumed = %v", inv.consumed)
	}
}

func TestApplySkipJoker(t *testing.T) {
	qs := questions(3)
	inv := newFakeInventory(map[string]int{exam.ItemJokerSkip: 3})
	s, _, sink := start(t, qs, exam.WithInventory(inv))

	_ = s.SelectAnswer(0, 3) // wrong, overridden by skip
	last, err := s.ApplySkipJoker(context.Background(), 0)
	if err != nil || last {
		t.Fatalf("skip 0: last=%v err=%v", last, err)
	}
	v := s.Snapshot()
	if v.Answers[0] != qs[0].CorrectIndex || v.CurrentIndex != 1 {
		t.Fatalf("after skip: answers=%v current=%d", v.Answers, v.CurrentIndex)
	}

	if _, err := s.ApplySkipJoker(context.Background(), 0); !errors.Is(err, exam.ErrQuestionIndex) {
		t.Fatalf("skip on non-current question: %v", err)
	}

	if _, err := s.Advance(context.Background()); err != nil {
		t.Fatal(err)
	}
	last, err = s.ApplySkipJoker(context.Background(), 2)
	if err != nil || !last {
		t.Fatalf("skip last: last=%v err=%v", last, err)
	}
	if s.State() != exam.StateActive {
		t.Fatal("skip on last question must not finish by itself")
	}
	r, err := s.FinishAfterSkip(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if r.CorrectCount != 2 || sink.count() != 1 {
		t.Fatalf("result=%+v sink=%d", r, sink.count())
	}
}

func TestApplySkipJoker_NoInventory(t *testing.T) {
	s, _, _ := start(t, questions(2))
	if _, err := s.ApplySkipJoker(context.Background(), 0); !errors.Is(err, exam.ErrNoJoker) {
		t.Fatalf("want ErrNoJoker, got %v", err)
	}
	v := s.Snapshot()
	if v.CurrentIndex != 0 || v.Answers[0] != exam.Unanswered {
		t.Fatalf("state changed: %+v", v)
	}
}

func TestStateString(t *testing.T) {
	if exam.StateFinished.String() != "FINISHED" || exam.State(42).String() != "State(42)" {
		t.Fatal("unexpected state names")
	}
	if !exam.StateAbandoned.Terminal() || exam.StateActive.Terminal() {
		t.Fatal("terminal states wrong")
	}
}
