package exam

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/helloclass/helloclass-lms/internal/metrics"
)

// Source names where a session's questions came from.
const (
	SourceAI     = "ai"
	SourceMarket = "market"
)

// Generator produces a fresh question set for cfg.
type Generator interface {
	Generate(ctx context.Context, cfg ExamConfig) ([]Question, error)
}

// Quota gates free AI exam starts. Reserve takes a slot up front and fails with
// ErrDailyLimitReached when none is left; release gives it back.
type Quota interface {
	Reserve(ctx context.Context, userID string) (release func(context.Context) error, err error)
}

// Catalog is the read side of the marketplace a session start needs.
type Catalog interface {
	GetExamAdmin(ctx context.Context, id string) (Exam, error)
	HasPurchase(ctx context.Context, userID, examID string) (bool, error)
}

type ServiceConfig struct {
	MinDuration           int           // minutes
	DefaultMarketDuration int           // minutes, used when an exam has none
	Retention             time.Duration // how long terminal sessions stay readable
}

type Service struct {
	gen       Generator
	quota     Quota
	catalog   Catalog
	inventory Inventory
	sink      ResultSink
	cfg       ServiceConfig
	validate  *validator.Validate

	// extra session options, mainly clocks for tests
	opts []Option

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewService(gen Generator, quota Quota, catalog Catalog, inv Inventory, sink ResultSink, cfg ServiceConfig, opts ...Option) *Service {
	if cfg.MinDuration <= 0 {
		cfg.MinDuration = DefaultMinDuration
	}
	if cfg.DefaultMarketDuration <= 0 {
		cfg.DefaultMarketDuration = 20
	}
	if cfg.Retention <= 0 {
		cfg.Retention = time.Hour
	}
	return &Service{
		gen:       gen,
		quota:     quota,
		catalog:   catalog,
		inventory: inv,
		sink:      sink,
		cfg:       cfg,
		validate:  validator.New(),
		opts:      opts,
		sessions:  map[string]*Session{},
	}
}

// StartAI generates a question set and starts a session over it. The daily
// slot is reserved before generation and released if no session comes of it.
func (s *Service) StartAI(ctx context.Context, u User, cfg ExamConfig) (*Session, error) {
	if err := s.validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid exam config: %w", err)
	}
	if s.gen == nil {
		return nil, ErrGenerationFailed
	}
	var release func(context.Context) error
	if s.quota != nil {
		r, err := s.quota.Reserve(ctx, u.ID)
		if errors.Is(err, ErrDailyLimitReached) {
			return nil, err
		}
		if err != nil {
			return nil, fmt.Errorf("quota: %w", err)
		}
		release = r
	}
	sess, err := s.generateAndStart(ctx, u, cfg)
	if err != nil && release != nil {
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			log.Printf("exam: release quota for %s: %v", u.ID, rerr)
		}
	}
	return sess, err
}

func (s *Service) generateAndStart(ctx context.Context, u User, cfg ExamConfig) (*Session, error) {
	qs, err := s.gen.Generate(ctx, cfg)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	// caller went away while we were waiting; drop the questions
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(qs) == 0 {
		return nil, ErrNoQuestions
	}
	return s.start(u, qs, cfg.DurationMinutes, SourceAI, cfg.Subject+" Sınavı")
}

// StartMarket starts a session over a marketplace exam the user may take.
func (s *Service) StartMarket(ctx context.Context, u User, examID string) (*Session, error) {
	if s.catalog == nil {
		return nil, ErrNotFound
	}
	e, err := s.catalog.GetExamAdmin(ctx, examID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(e.Questions) == 0 {
		return nil, ErrNoQuestions
	}
	if ok, err := s.canTake(ctx, u, e); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrNotOwned
	}
	d := e.DurationMinutes
	if d <= 0 {
		d = s.cfg.DefaultMarketDuration
	}
	return s.start(u, e.Questions, d, SourceMarket, e.Title)
}

func (s *Service) canTake(ctx context.Context, u User, e Exam) (bool, error) {
	if e.Price == 0 || e.CreatorID == u.ID || u.Role == "admin" {
		return true, nil
	}
	return s.catalog.HasPurchase(ctx, u.ID, e.ID)
}

func (s *Service) start(u User, qs []Question, minutes int, source, title string) (*Session, error) {
	opts := []Option{
		WithUser(u.ID),
		WithSource(source),
		WithTitle(title),
		WithMinDuration(s.cfg.MinDuration),
		WithInventory(jokerCounter{s.inventory}),
		WithSink(s.sink),
		WithOnFinish(func(t Trigger) {
			metrics.SessionsFinished.WithLabelValues(string(t)).Inc()
			metrics.ActiveSessions.Dec()
		}),
	}
	sess, err := StartSession(qs, minutes, append(opts, s.opts...)...)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()

	metrics.SessionsStarted.WithLabelValues(source).Inc()
	metrics.ActiveSessions.Inc()
	log.Printf("exam: session %s started for %s (%s, %d questions)", sess.ID(), u.ID, source, len(qs))
	return sess, nil
}

// Get returns a session owned by userID.
func (s *Service) Get(userID, id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok || sess.UserID() != userID {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Abandon discards an owned session without scoring it.
func (s *Service) Abandon(userID, id string) error {
	sess, err := s.Get(userID, id)
	if err != nil {
		return err
	}
	if sess.Abandon() {
		metrics.ActiveSessions.Dec()
	}
	return nil
}

// Sweep drops terminal sessions that ended before now minus the retention window
// and reports how many were removed.
func (s *Service) Sweep(now time.Time) int {
	cutoff := now.Add(-s.cfg.Retention)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if !sess.State().Terminal() {
			continue
		}
		if sess.EndedAt().Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Sweep(now); n > 0 {
				log.Printf("exam: swept %d sessions", n)
			}
		}
	}
}

// Close abandons every live session.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if sess.Abandon() {
			metrics.ActiveSessions.Dec()
		}
		delete(s.sessions, id)
	}
}

// Len is the number of sessions held, live or not.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// jokerCounter counts successful joker consumptions.
type jokerCounter struct{ inv Inventory }

func (j jokerCounter) Count(ctx context.Context, userID, itemID string) (int, error) {
	if j.inv == nil {
		return 0, nil
	}
	return j.inv.Count(ctx, userID, itemID)
}

func (j jokerCounter) Consume(ctx context.Context, userID, itemID string) error {
	if j.inv == nil {
		return ErrNoJoker
	}
	if err := j.inv.Consume(ctx, userID, itemID); err != nil {
		return err
	}
	metrics.JokersUsed.WithLabelValues(itemID).Inc()
	return nil
}
