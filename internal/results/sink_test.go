package results

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/helloclass/helloclass-lms/internal/db"
	"github.com/helloclass/helloclass-lms/internal/exam"
	syncx "github.com/helloclass/helloclass-lms/internal/sync"
)

type fakePublisher struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, key string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	return p.err
}

func (p *fakePublisher) Close() error { return nil }

var _ exam.ResultSink = (*Sink)(nil)

func result(subject, title string, correct, total int) exam.Result {
	qs := make([]exam.Question, total)
	for i := range qs {
		qs[i] = exam.Question{ID: "q", Subject: subject, Options: []string{"a", "b", "c", "d"}}
	}
	return exam.Result{
		Title:          title,
		Score:          correct * 100 / total,
		CorrectCount:   correct,
		TotalQuestions: total,
		Questions:      qs,
	}
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(ctx, db.DriverSQLite, "file:results_submit?mode=memory&cache=shared")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, err := conn.Exec(`INSERT INTO users (id,username,password_hash,role,points,created_at)
		VALUES ('u1','u1','x','student',5,0)`); err != nil {
		t.Fatal(err)
	}

	events := syncx.NewEventRepo(conn)
	pub := &fakePublisher{}
	sink := NewSink(conn, events, pub)
	day := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	sink.now = func() time.Time { return day }

	sink.Submit(ctx, "u1", result("Matematik", "", 3, 4))
	day = day.Add(time.Hour)
	sink.Submit(ctx, "u1", result("Fizik", "TYT Deneme", 0, 2))
	day = day.Add(time.Hour)
	sink.Submit(ctx, "u1", result("", "", 1, 1))

	var points int
	if err := conn.QueryRow(`SELECT points FROM users WHERE id='u1'`).Scan(&points); err != nil {
		t.Fatal(err)
	}
	if points != 5+30+0+10 {
		t.Fatalf("points = %d", points)
	}

	hist, err := sink.History(ctx, "u1", 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Genel Sınavı", "TYT Deneme", "Matematik Sınavı"}
	if len(hist) != len(want) {
		t.Fatalf("history = %+v", hist)
	}
	for i, h := range hist {
		if h.Title != want[i] {
			t.Errorf("history[%d].Title = %q, want %q", i, h.Title, want[i])
		}
	}
	if hist[2].Score != 75 || hist[2].CorrectCount != 3 || hist[2].TotalQuestions != 4 {
		t.Errorf("oldest entry = %+v", hist[2])
	}
	if !hist[2].CompletedAt.Equal(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("completed at = %v", hist[2].CompletedAt)
	}

	evs, err := events.Since(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 3 || evs[0].Type != syncx.TypeExamCompleted || evs[0].Key != "u1" {
		t.Fatalf("events = %+v", evs)
	}
	var c Completed
	if err := json.Unmarshal([]byte(evs[0].DataJSON), &c); err != nil {
		t.Fatal(err)
	}
	if c.PointsAwarded != 30 || c.Subject != "Matematik" {
		t.Errorf("payload = %+v", c)
	}
	if len(pub.keys) != 3 || pub.keys[0] != RoutingCompleted {
		t.Errorf("published = %v", pub.keys)
	}
}

func TestSubmitPublishFailureIsLogged(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(ctx, db.DriverSQLite, "file:results_pubfail?mode=memory&cache=shared")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	sink := NewSink(conn, nil, &fakePublisher{err: errors.New("broker down")})
	sink.Submit(ctx, "nobody", result("Kimya", "", 2, 2))

	hist, err := sink.History(ctx, "nobody", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 1 {
		t.Fatalf("history = %+v", hist)
	}
}
