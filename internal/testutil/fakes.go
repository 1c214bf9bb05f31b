// Package testutil holds in-memory implementations of the ports for unit
// tests. Behavior mirrors the Postgres stores: lease-conditional queue
// mutations, compare-and-increment usage, forward-only suggestion fields.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"ai-reply-assistant/internal/domain"
	"ai-reply-assistant/internal/domain/model"
	"ai-reply-assistant/internal/domain/ports/adapter"
	"ai-reply-assistant/internal/domain/ports/repository"
)

func Logger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// Clock is a settable time source shared by fakes in one test.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{now: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// ---- TxManager ----

type TxManager struct {
	mu sync.Mutex
}

var _ repository.TransactionManager = (*TxManager)(nil)

// WithTx serializes transactions; the fakes are not isolation-aware otherwise.
func (m *TxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, nil)
}

// ---- JobQueue ----

type JobQueue struct {
	mu    sync.Mutex
	jobs  map[string]*model.GenerationJob
	Clock *Clock
	Err   error // returned by Enqueue when set
}

var _ repository.JobQueue = (*JobQueue)(nil)

func NewJobQueue(clock *Clock) *JobQueue {
	return &JobQueue{jobs: map[string]*model.GenerationJob{}, Clock: clock}
}

func (q *JobQueue) now() time.Time {
	if q.Clock == nil {
		return time.Now().UTC()
	}
	return q.Clock.Now()
}

func cloneJob(j *model.GenerationJob) *model.GenerationJob {
	c := *j
	c.ContextMessages = append([]model.ContextMessage(nil), j.ContextMessages...)
	return &c
}

func (q *JobQueue) Enqueue(_ context.Context, job *model.GenerationJob) (*model.GenerationJob, bool, error) {
	if q.Err != nil {
		return nil, false, q.Err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if existing, ok := q.jobs[job.ID]; ok {
		return cloneJob(existing), false, nil
	}
	j := cloneJob(job)
	now := q.now()
	j.Status = model.JobStatusPending
	if j.EnqueuedAt.IsZero() {
		j.EnqueuedAt = now
	}
	j.VisibleAt = now
	q.jobs[j.ID] = j
	return cloneJob(j), true, nil
}

func (q *JobQueue) Claim(_ context.Context, visibility time.Duration) (*model.GenerationJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	var eligible []*model.GenerationJob
	for _, j := range q.jobs {
		if (j.Status == model.JobStatusPending || j.Status == model.JobStatusProcessing) && !j.VisibleAt.After(now) {
			eligible = append(eligible, j)
		}
	}
	if len(eligible) == 0 {
		return nil, domain.ErrNotFound
	}
	sort.Slice(eligible, func(a, b int) bool { return eligible[a].VisibleAt.Before(eligible[b].VisibleAt) })
	j := eligible[0]
	j.Status = model.JobStatusProcessing
	j.Attempts++
	j.LeaseToken = uuid.NewString()
	j.VisibleAt = now.Add(visibility)
	return cloneJob(j), nil
}

func (q *JobQueue) leased(jobID, lease string, fn func(j *model.GenerationJob)) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[jobID]
	if !ok || j.Status != model.JobStatusProcessing || j.LeaseToken != lease {
		return domain.ErrLeaseLost
	}
	fn(j)
	return nil
}

func (q *JobQueue) Ack(_ context.Context, jobID, lease string) error {
	return q.leased(jobID, lease, func(j *model.GenerationJob) {
		j.Status = model.JobStatusCompleted
		j.LeaseToken = ""
	})
}

func (q *JobQueue) Nack(_ context.Context, jobID, lease string, retryAfter time.Duration, reason string) error {
	return q.leased(jobID, lease, func(j *model.GenerationJob) {
		j.Status = model.JobStatusPending
		j.LeaseToken = ""
		j.LastError = reason
		j.VisibleAt = q.now().Add(retryAfter)
	})
}

func (q *JobQueue) DeadLetter(_ context.Context, jobID, lease, reason string) error {
	return q.leased(jobID, lease, func(j *model.GenerationJob) {
		j.Status = model.JobStatusDead
		j.LeaseToken = ""
		j.LastError = reason
	})
}

func (q *JobQueue) Extend(_ context.Context, jobID, lease string, visibility time.Duration) error {
	return q.leased(jobID, lease, func(j *model.GenerationJob) {
		j.VisibleAt = q.now().Add(visibility)
	})
}

func (q *JobQueue) Void(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	switch j.Status {
	case model.JobStatusVoid:
		return nil
	case model.JobStatusPending, model.JobStatusProcessing:
		j.Status = model.JobStatusVoid
		j.LeaseToken = ""
		return nil
	}
	return fmt.Errorf("%w: job is %s", domain.ErrInvalidArgument, j.Status)
}

func (q *JobQueue) IsVoided(_ context.Context, jobID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[jobID]
	if !ok {
		return false, domain.ErrNotFound
	}
	return j.Status == model.JobStatusVoid, nil
}

func (q *JobQueue) MarkNoticeSent(_ context.Context, jobID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[jobID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if j.NoticeSent {
		return false, nil
	}
	j.NoticeSent = true
	return true, nil
}

func (q *JobQueue) FindByID(_ context.Context, jobID string) (*model.GenerationJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneJob(j), nil
}

func (q *JobQueue) ListDead(_ context.Context, limit int) ([]*model.GenerationJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*model.GenerationJob
	for _, j := range q.jobs {
		if j.Status == model.JobStatusDead {
			out = append(out, cloneJob(j))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *JobQueue) Stats(_ context.Context) (repository.QueueStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	st := repository.QueueStats{}
	for _, j := range q.jobs {
		st[j.Status]++
	}
	return st, nil
}

// ---- SuggestionRepository ----

type SuggestionRepo struct {
	mu      sync.Mutex
	byID    map[string]*model.SuggestionRecord
	byJobID map[string]string

	CreateErr error   // returned by Create when set
	FindErrs  []error // consumed one per FindByJobID call; nil entries run normally
}

var _ repository.SuggestionRepository = (*SuggestionRepo)(nil)

func NewSuggestionRepo() *SuggestionRepo {
	return &SuggestionRepo{byID: map[string]*model.SuggestionRecord{}, byJobID: map[string]string{}}
}

func cloneRec(r *model.SuggestionRecord) *model.SuggestionRecord {
	c := *r
	return &c
}

func (r *SuggestionRepo) Create(_ context.Context, _ repository.Tx, rec *model.SuggestionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.CreateErr != nil {
		return r.CreateErr
	}
	if _, ok := r.byJobID[rec.JobID]; ok {
		return domain.ErrAlreadyExists
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.State == "" {
		rec.State = model.SuggestionPending
	}
	r.byID[rec.ID] = cloneRec(rec)
	r.byJobID[rec.JobID] = rec.ID
	return nil
}

func (r *SuggestionRepo) FindByJobID(_ context.Context, _ repository.Tx, jobID string) (*model.SuggestionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.FindErrs) > 0 {
		err := r.FindErrs[0]
		r.FindErrs = r.FindErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	id, ok := r.byJobID[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneRec(r.byID[id]), nil
}

func (r *SuggestionRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.SuggestionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneRec(rec), nil
}

func (r *SuggestionRepo) MarkUsageReserved(_ context.Context, _ repository.Tx, id string) error {
	return r.update(id, func(rec *model.SuggestionRecord) { rec.UsageReserved = true })
}

func (r *SuggestionRepo) MarkState(_ context.Context, _ repository.Tx, id string, state model.SuggestionState) error {
	return r.update(id, func(rec *model.SuggestionRecord) {
		if rec.DeliveredAt == nil {
			rec.State = state
		}
	})
}

func (r *SuggestionRepo) MarkDelivered(_ context.Context, _ repository.Tx, id string, channel model.DeliveryChannel, at time.Time) error {
	return r.update(id, func(rec *model.SuggestionRecord) {
		if rec.DeliveredAt == nil {
			rec.DeliveredAt = &at
			rec.DeliveryChannel = channel
			rec.State = model.SuggestionDelivered
		}
	})
}

func (r *SuggestionRepo) update(id string, fn func(rec *model.SuggestionRecord)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	fn(rec)
	return nil
}

// Count returns how many records exist.
func (r *SuggestionRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// ---- UsageRepository ----

type UsageRepo struct {
	mu             sync.Mutex
	counters       map[string]*model.UsageCounter
	DefaultLimit   int64
	DefaultOverage int64
	Err            error
}

var _ repository.UsageRepository = (*UsageRepo)(nil)

func NewUsageRepo(limit, overage int64) *UsageRepo {
	return &UsageRepo{counters: map[string]*model.UsageCounter{}, DefaultLimit: limit, DefaultOverage: overage}
}

// Set seeds a counter for the current period.
func (u *UsageRepo) Set(tenantID, userID string, used, limit int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	c := u.ensure(tenantID, userID)
	c.Used = used
	c.Limit = limit
}

func (u *UsageRepo) Used(tenantID, userID string) int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.ensure(tenantID, userID).Used
}

func (u *UsageRepo) ensure(tenantID, userID string) *model.UsageCounter {
	key := tenantID + "|" + userID
	c, ok := u.counters[key]
	if !ok {
		start, end := model.NextPeriod(time.Time{}, time.Now().UTC())
		c = &model.UsageCounter{TenantID: tenantID, UserID: userID, Limit: u.DefaultLimit, Overage: u.DefaultOverage, PeriodStart: start, PeriodEnd: end}
		u.counters[key] = c
	}
	return c
}

func (u *UsageRepo) ReadCounter(_ context.Context, _ repository.Tx, tenantID, userID string) (*model.UsageCounter, error) {
	if u.Err != nil {
		return nil, u.Err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	c := *u.ensure(tenantID, userID)
	return &c, nil
}

func (u *UsageRepo) Increment(_ context.Context, _ repository.Tx, tenantID, userID string) (*model.UsageCounter, error) {
	if u.Err != nil {
		return nil, u.Err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	c := u.ensure(tenantID, userID)
	c.Used++
	out := *c
	return &out, nil
}

func (u *UsageRepo) IncrementIfBelow(_ context.Context, _ repository.Tx, tenantID, userID string, ceiling int64) (*model.UsageCounter, bool, error) {
	if u.Err != nil {
		return nil, false, u.Err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	c := u.ensure(tenantID, userID)
	if c.Used >= ceiling {
		out := *c
		return &out, false, nil
	}
	c.Used++
	out := *c
	return &out, true, nil
}

// ---- Policy, style and person stores ----

type PolicyRepo struct {
	mu       sync.Mutex
	Policies map[string]*model.GuardrailPolicy
	Calls    int
}

var _ repository.PolicyRepository = (*PolicyRepo)(nil)

func (p *PolicyRepo) GetPolicy(_ context.Context, tenantID string) (*model.GuardrailPolicy, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls++
	if pol, ok := p.Policies[tenantID]; ok {
		c := *pol
		return &c, nil
	}
	return &model.GuardrailPolicy{TenantID: tenantID}, nil
}

type StyleRepo struct {
	Prefs map[string]*model.StylePreferences // key tenant|user
	Err   error
}

var _ repository.StyleRepository = (*StyleRepo)(nil)

func (s *StyleRepo) GetStylePreferences(_ context.Context, tenantID, userID string) (*model.StylePreferences, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if p, ok := s.Prefs[tenantID+"|"+userID]; ok {
		return p, nil
	}
	return &model.StylePreferences{}, nil
}

type PersonRepo struct {
	Notes map[string]string // key tenant|user|target
	Err   error
}

var _ repository.PersonRepository = (*PersonRepo)(nil)

func (p *PersonRepo) GetPersonContext(_ context.Context, tenantID, userID, targetUserID string) (string, error) {
	if p.Err != nil {
		return "", p.Err
	}
	return p.Notes[tenantID+"|"+userID+"|"+targetUserID], nil
}

// ---- Chat platform ----

type Post struct {
	ChannelID string
	UserID    string
	ThreadTS  string
	Text      string
}

type ChatPlatform struct {
	mu sync.Mutex

	History    []model.ContextMessage
	HistoryErr error
	// FailEphemeral makes the next n PostEphemeral calls fail with EphemeralErr.
	FailEphemeral int
	EphemeralErr  error
	PostErr       error
	OpenErr       error
	DirectChannel string

	HistoryCalls   int
	EphemeralCalls int
	Ephemeral      []Post
	Messages       []Post
}

var _ adapter.ChatPlatform = (*ChatPlatform)(nil)

func (c *ChatPlatform) FetchHistory(_ context.Context, _, _, _ string, _ int) ([]model.ContextMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.HistoryCalls++
	if c.HistoryErr != nil {
		return nil, c.HistoryErr
	}
	return append([]model.ContextMessage(nil), c.History...), nil
}

func (c *ChatPlatform) PostEphemeral(_ context.Context, channelID, userID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.EphemeralCalls++
	if c.FailEphemeral > 0 {
		c.FailEphemeral--
		err := c.EphemeralErr
		if err == nil {
			err = domain.Transient("chat.ephemeral", fmt.Errorf("internal_error"))
		}
		return err
	}
	c.Ephemeral = append(c.Ephemeral, Post{ChannelID: channelID, UserID: userID, Text: text})
	return nil
}

func (c *ChatPlatform) PostMessage(_ context.Context, channelID, threadTS, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.PostErr != nil {
		return c.PostErr
	}
	c.Messages = append(c.Messages, Post{ChannelID: channelID, ThreadTS: threadTS, Text: text})
	return nil
}

func (c *ChatPlatform) OpenDirect(_ context.Context, userID string) (string, error) {
	if c.OpenErr != nil {
		return "", c.OpenErr
	}
	if c.DirectChannel != "" {
		return c.DirectChannel, nil
	}
	return "D-" + userID, nil
}

// Visible returns every message a user could see, in delivery order per kind.
func (c *ChatPlatform) Visible() []Post {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := append([]Post(nil), c.Ephemeral...)
	return append(out, c.Messages...)
}

// ---- Completion service ----

type Completion struct {
	mu sync.Mutex

	// Reply produces the response for each call; defaults to a fixed text.
	Reply    func(req adapter.CompletionRequest) (adapter.Completion, error)
	Calls    int
	Requests []adapter.CompletionRequest
}

var _ adapter.CompletionService = (*Completion)(nil)

func (c *Completion) Complete(_ context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
	c.mu.Lock()
	c.Calls++
	c.Requests = append(c.Requests, req)
	reply := c.Reply
	c.mu.Unlock()
	if reply == nil {
		return adapter.Completion{Text: "Sounds good, I will take a look today.", Model: "test-model", Provider: "test"}, nil
	}
	return reply(req)
}

func (c *Completion) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Calls
}

// WordCounter counts whitespace-separated words as tokens.
type WordCounter struct{}

func (WordCounter) Count(text string) int { return len(strings.Fields(text)) }

// ---- Audit and alerts ----

type AuditSink struct {
	mu     sync.Mutex
	Events []model.AuditEvent
	Err    error
}

var _ adapter.AuditSink = (*AuditSink)(nil)

func (a *AuditSink) Record(_ context.Context, ev model.AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return a.Err
	}
	a.Events = append(a.Events, ev)
	return nil
}

// Actions lists recorded actions in order.
func (a *AuditSink) Actions() []model.AuditAction {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.AuditAction, 0, len(a.Events))
	for _, ev := range a.Events {
		out = append(out, ev.Action)
	}
	return out
}

func (a *AuditSink) Has(action model.AuditAction) bool {
	for _, got := range a.Actions() {
		if got == action {
			return true
		}
	}
	return false
}

type Alerter struct {
	mu     sync.Mutex
	Alerts []string
}

var _ adapter.AlertNotifier = (*Alerter)(nil)

func (a *Alerter) Alert(_ context.Context, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Alerts = append(a.Alerts, text)
	return nil
}

// ---- Locker ----

// Locker mirrors the Redis job lock in memory.
type Locker struct {
	mu   sync.Mutex
	held map[string]string
	Err  error // returned by TryLock when set
}

func NewLocker() *Locker { return &Locker{held: map[string]string{}} }

func (l *Locker) TryLock(_ context.Context, key string, _ time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return "", l.Err
	}
	if _, ok := l.held[key]; ok {
		return "", domain.ErrLocked
	}
	token := uuid.NewString()
	l.held[key] = token
	return token, nil
}

func (l *Locker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

// Release drops key regardless of owner, as a TTL expiry would.
func (l *Locker) Release(key string) {
	l.mu.Lock()
	delete(l.held, key)
	l.mu.Unlock()
}
