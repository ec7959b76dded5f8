package delivery

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// memStore is an in-memory Store. ClaimDelivery is a compare-and-set under
// the mutex, the same contract the SQL store gives with a conditional UPDATE.
type memStore struct {
	mu       sync.Mutex
	settings map[uuid.UUID]models.CheckInSettings
	records  []models.DeliveryRecord

	listErr   error
	getErr    error
	insertErr error
	claims    int
	releases  int
}

func newMemStore() *memStore {
	return &memStore{settings: map[uuid.UUID]models.CheckInSettings{}}
}

func (m *memStore) put(s models.CheckInSettings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[s.UserID] = s
}

func (m *memStore) get(id uuid.UUID) models.CheckInSettings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings[id]
}

func (m *memStore) ListSettings(_ context.Context, f SettingsFilter) ([]models.CheckInSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []models.CheckInSettings
	for _, s := range m.settings {
		if f.Enabled != nil && s.IsEnabled != *f.Enabled {
			continue
		}
		if f.Active != nil && s.IsActive != *f.Active {
			continue
		}
		if f.DeliveryTriggered != nil && s.DeliveryTriggered != *f.DeliveryTriggered {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID.String() < out[j].UserID.String() })
	return out, nil
}

func (m *memStore) GetSettings(_ context.Context, id uuid.UUID) (*models.CheckInSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	s, ok := m.settings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

// SaveSettings mirrors the SQL upsert: trigger state is kept and an existing
// last_check_in is never overwritten.
func (m *memStore) SaveSettings(_ context.Context, s *models.CheckInSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := *s
	if cur, ok := m.settings[s.UserID]; ok {
		next.DeliveryTriggered = cur.DeliveryTriggered
		next.TriggeredAt = cur.TriggeredAt
		next.EpisodeID = cur.EpisodeID
		if cur.LastCheckIn != nil {
			next.LastCheckIn = cur.LastCheckIn
		}
	}
	m.settings[s.UserID] = next
	return nil
}

func (m *memStore) ClaimDelivery(_ context.Context, c Claim) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[c.UserID]
	if !ok || s.DeliveryTriggered || s.LastCheckIn == nil || !s.LastCheckIn.Equal(c.LastCheckIn) {
		return false, nil
	}
	s.DeliveryTriggered = true
	at := c.At
	ep := c.EpisodeID
	s.TriggeredAt = &at
	s.EpisodeID = &ep
	m.settings[c.UserID] = s
	m.claims++
	return true, nil
}

func (m *memStore) ReleaseDelivery(_ context.Context, c Claim) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[c.UserID]
	if !ok || !s.DeliveryTriggered || s.EpisodeID == nil || *s.EpisodeID != c.EpisodeID {
		return false, nil
	}
	s.DeliveryTriggered = false
	s.TriggeredAt = nil
	s.EpisodeID = nil
	m.settings[c.UserID] = s
	m.releases++
	return true, nil
}

func (m *memStore) UpdateCheckIn(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[id]
	if !ok {
		return ErrNotFound
	}
	s.LastCheckIn = &at
	s.DeliveryTriggered = false
	s.TriggeredAt = nil
	s.EpisodeID = nil
	m.settings[id] = s
	return nil
}

func (m *memStore) InsertDeliveryRecord(_ context.Context, r *models.DeliveryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.records = append(m.records, *r)
	return nil
}

func (m *memStore) FinishDeliveryRecord(_ context.Context, id uuid.UUID, o DeliveryOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].ID != id {
			continue
		}
		if m.records[i].DeliveryStatus != models.DeliveryPending {
			return errors.New("record already finished")
		}
		m.records[i].DeliveryStatus = o.Status
		m.records[i].MessageID = o.MessageID
		m.records[i].Attempts = o.Attempts
		m.records[i].SentAt = o.SentAt
		m.records[i].ErrorMessage = o.ErrorMessage
		return nil
	}
	return ErrNotFound
}

func (m *memStore) ListDeliveryRecords(_ context.Context, q DeliveryQuery) ([]models.DeliveryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DeliveryRecord
	for _, r := range m.records {
		if r.UserID != q.UserID {
			continue
		}
		if !q.From.IsZero() && r.CreatedAt.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && r.CreatedAt.After(q.To) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *memStore) recordsFor(id uuid.UUID) []models.DeliveryRecord {
	out, _ := m.ListDeliveryRecords(context.Background(), DeliveryQuery{UserID: id})
	return out
}

// fakeMailer fails for any address listed in fail, and counts calls.
type fakeMailer struct {
	mu    sync.Mutex
	fail  map[string]error
	calls map[string]int
	sent  []Message
	block bool
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{fail: map[string]error{}, calls: map[string]int{}}
}

func (f *fakeMailer) Send(ctx context.Context, msg Message) (string, error) {
	f.mu.Lock()
	f.calls[msg.To]++
	err := f.fail[msg.To]
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	return "<" + uuid.NewString() + "@test>", nil
}

func (f *fakeMailer) callCount(to string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[to]
}

func (f *fakeMailer) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

type tempErr struct{ temp bool }

func (e tempErr) Error() string {
	if e.temp {
		return "421 try again later"
	}
	return "550 mailbox unavailable"
}
func (e tempErr) Temporary() bool { return e.temp }

type textComposer struct{}

func (textComposer) Compose(p *Payload, r models.Recipient) (Message, error) {
	var b strings.Builder
	b.WriteString("From " + p.OwnerEmail + "\n")
	for _, s := range p.Summary {
		b.WriteString(s.Title + "\n")
	}
	return Message{
		To:          r.Email,
		ToName:      r.Name,
		Subject:     "Important: Financial Data from " + p.OwnerEmail,
		TextBody:    b.String(),
		Attachments: p.Documents,
	}, nil
}

type staticSource struct {
	section Section
	err     error
}

func (s staticSource) Fetch(context.Context, uuid.UUID) (Section, error) {
	return s.section, s.err
}

func accountsSection() Section {
	return Section{
		Title:   "Accounts",
		Count:   2,
		Totals:  []Total{{Label: "USD", Amount: decimal.RequireFromString("1500.25")}},
		Columns: []string{"Name", "Type", "Currency", "Balance"},
		Rows: [][]string{
			{"Checking", "bank", "USD", "1000.25"},
			{"Wallet", "cash", "USD", "500.00"},
		},
	}
}

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func recipients(emails ...string) datatypes.JSONSlice[models.Recipient] {
	out := make(datatypes.JSONSlice[models.Recipient], 0, len(emails))
	for i, e := range emails {
		out = append(out, models.Recipient{
			ID:           uuid.NewString(),
			Email:        e,
			Name:         "Recipient " + string(rune('A'+i)),
			Relationship: "family",
		})
	}
	return out
}

// armed returns settings that are overdue at t0+freq days+1s.
func armed(freqDays float64, emails ...string) models.CheckInSettings {
	id := uuid.New()
	last := t0
	return models.CheckInSettings{
		UserID:           id,
		IsEnabled:        true,
		IsActive:         true,
		CheckInFrequency: freqDays,
		LastCheckIn:      &last,
		Recipients:       recipients(emails...),
		IncludeData:      datatypes.NewJSONType(models.DefaultIncludeData()),
		Message:          "Look after each other.",
		User:             models.User{ID: id, Email: "owner-" + id.String()[:8] + "@example.com", FullName: "Sam Owner"},
	}
}

type harness struct {
	store  *memStore
	mailer *fakeMailer
	runner *Runner
}

func newHarness() *harness {
	st := newMemStore()
	ml := newFakeMailer()
	sources := map[models.Category]CategorySource{
		models.CategoryAccounts: staticSource{section: accountsSection()},
	}
	b := NewBuilder(st, sources, RenderJSON)
	b.now = func() time.Time { return t0 }
	d := NewDispatcher(st, ml, textComposer{}, DispatchConfig{
		SendTimeout: time.Second,
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
		Concurrency: 2,
	})
	d.sleep = func(context.Context, time.Duration) error { return nil }
	return &harness{store: st, mailer: ml, runner: NewRunner(st, b, d)}
}
