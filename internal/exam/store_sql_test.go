package exam_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/helloclass/helloclass-lms/internal/db"
	"github.com/helloclass/helloclass-lms/internal/exam"
)

func openStore(t *testing.T) (*exam.SQLStore, *sql.DB) {
	t.Helper()
	conn, err := db.Open(context.Background(), db.DriverSQLite, "file:"+t.Name()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return exam.NewSQLStore(conn, "sqlite"), conn
}

func seedExam(t *testing.T, s *exam.SQLStore, e exam.Exam) {
	t.Helper()
	if err := s.PutExam(context.Background(), e); err != nil {
		t.Fatalf("put %s: %v", e.ID, err)
	}
}

func TestSQLStore_GetExam(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	qs := questions(2)
	qs[1].Explanation = "because"
	seedExam(t, s, exam.Exam{ID: "e1", Title: "Kimya", Subject: "Kimya", CreatorID: "t1", Price: 50, Questions: qs})

	full, err := s.GetExamAdmin(ctx, "e1")
	if err != nil {
		t.Fatal(err)
	}
	if len(full.Questions) != 2 || full.Questions[1].CorrectIndex != 1 || full.Questions[1].Explanation != "because" {
		t.Fatalf("admin view lost data: %+v", full.Questions)
	}
	if full.Status != exam.StatusPublished {
		t.Fatalf("default status = %s", full.Status)
	}

	safe, err := s.GetExam(ctx, "e1")
	if err != nil {
		t.Fatal(err)
	}
	for _, q := range safe.Questions {
		if q.CorrectIndex != 0 || q.Explanation != "" {
			t.Fatalf("student view leaks answers: %+v", q)
		}
	}

	if _, err := s.GetExam(ctx, "nope"); !errors.Is(err, exam.ErrNotFound) {
		t.Fatalf("missing exam: %v", err)
	}
}

func TestSQLStore_ListExams(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	seedExam(t, s, exam.Exam{ID: "a", Title: "Türev Testi", Subject: "Matematik", CreatorID: "t1", CreatedAt: 3, Status: exam.StatusPublished})
	seedExam(t, s, exam.Exam{ID: "b", Title: "Optik", Subject: "Fizik", CreatorID: "t1", CreatedAt: 2, Status: exam.StatusPublished})
	seedExam(t, s, exam.Exam{ID: "c", Title: "Taslak", Subject: "Fizik", CreatorID: "t2", CreatedAt: 1, Status: exam.StatusDraft})
	seedExam(t, s, exam.Exam{ID: "d", Title: "Silinen", Subject: "Fizik", CreatorID: "t2", CreatedAt: 4})
	if err := s.DeleteExam(ctx, "d"); err != nil {
		t.Fatal(err)
	}

	ids := func(list []exam.ExamSummary) []string {
		out := make([]string, len(list))
		for i, e := range list {
			out[i] = e.ID
		}
		return out
	}
	cases := []struct {
		name string
		opts exam.ListOpts
		want []string
	}{
		{"public", exam.ListOpts{}, []string{"a", "b"}},
		{"creator sees own draft", exam.ListOpts{ViewerID: "t2"}, []string{"a", "b", "c"}},
		{"admin", exam.ListOpts{ViewerRole: "admin"}, []string{"a", "b", "c"}},
		{"subject", exam.ListOpts{Subject: "Fizik"}, []string{"b"}},
		{"query", exam.ListOpts{Q: "opt"}, []string{"b"}},
		{"paged", exam.ListOpts{Limit: 1, Offset: 1}, []string{"b"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			list, err := s.ListExams(ctx, c.opts)
			if err != nil {
				t.Fatal(err)
			}
			got := ids(list)
			if len(got) != len(c.want) {
				t.Fatalf("got %v, want %v", got, c.want)
			}
			for i := range got {
				if got[i] != c.want[i] {
					t.Fatalf("got %v, want %v", got, c.want)
				}
			}
		})
	}
}

func TestSQLStore_AppendQuestions(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	seedExam(t, s, exam.Exam{ID: "e1", Title: "Biyoloji", Subject: "Biyoloji", CreatorID: "t1", Questions: questions(1)})

	e, err := s.AppendQuestions(ctx, "e1", questions(3))
	if err != nil {
		t.Fatal(err)
	}
	if len(e.Questions) != 4 {
		t.Fatalf("questions = %d", len(e.Questions))
	}
	list, _ := s.ListExams(ctx, exam.ListOpts{})
	if len(list) != 1 || list[0].QuestionCount != 4 {
		t.Fatalf("question_count not updated: %+v", list)
	}
	if _, err := s.AppendQuestions(ctx, "missing", questions(1)); !errors.Is(err, exam.ErrNotFound) {
		t.Fatalf("missing: %v", err)
	}
}

func TestSQLStore_Purchase(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	seedExam(t, s, exam.Exam{ID: "e1", Title: "Tarih", Subject: "Tarih", CreatorID: "t1", Price: 200})

	if ok, _ := s.HasPurchase(ctx, "u1", "e1"); ok {
		t.Fatal("owned before purchase")
	}
	if err := s.Purchase(ctx, "u1", "e1"); err != nil {
		t.Fatal(err)
	}
	if ok, err := s.HasPurchase(ctx, "u1", "e1"); err != nil || !ok {
		t.Fatalf("HasPurchase = %v, %v", ok, err)
	}
	if err := s.Purchase(ctx, "u1", "e1"); !errors.Is(err, exam.ErrAlreadyOwned) {
		t.Fatalf("second purchase: %v", err)
	}
	e, _ := s.GetExamAdmin(ctx, "e1")
	if e.Sales != 1 {
		t.Fatalf("sales = %d", e.Sales)
	}
}

func TestSQLStore_SetStatusAndDelete(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	seedExam(t, s, exam.Exam{ID: "e1", Title: "Coğrafya", Subject: "Coğrafya", CreatorID: "t1", Status: exam.StatusPending})

	if err := s.SetStatus(ctx, "e1", exam.StatusPublished); err != nil {
		t.Fatal(err)
	}
	e, _ := s.GetExamAdmin(ctx, "e1")
	if e.Status != exam.StatusPublished {
		t.Fatalf("status = %s", e.Status)
	}
	if err := s.DeleteExam(ctx, "e1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetExamAdmin(ctx, "e1"); !errors.Is(err, exam.ErrNotFound) {
		t.Fatalf("deleted exam still readable: %v", err)
	}
	if err := s.DeleteExam(ctx, "e1"); !errors.Is(err, exam.ErrNotFound) {
		t.Fatalf("double delete: %v", err)
	}
}
