package signature

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"esign-backend/audit"
	"esign-backend/captoken"
	"esign-backend/models"
	"esign-backend/testutil"

	"gorm.io/gorm"
)

var t0 = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

const baseURL = "https://sign.test"

var signer = Client{IP: "203.0.113.7", UserAgent: "Mozilla/5.0"}

type sentMail struct {
	to, subject, body string
}

type fakeMailer struct {
	mu   sync.Mutex
	fail bool
	sent []sentMail
}

func (m *fakeMailer) Send(to, subject, body string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return false
	}
	m.sent = append(m.sent, sentMail{to, subject, body})
	return true
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

var codeInBody = regexp.MustCompile(`<strong>(\d{6})</strong>`)

func (m *fakeMailer) lastCode(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("no email sent")
	}
	match := codeInBody.FindStringSubmatch(m.sent[len(m.sent)-1].body)
	if match == nil {
		t.Fatalf("no code in last email:\n%s", m.sent[len(m.sent)-1].body)
	}
	return match[1]
}

type note struct {
	userID, title, link string
}

type fakeNotifier struct {
	mu    sync.Mutex
	notes []note
}

func (n *fakeNotifier) Notify(_ context.Context, userID, title, _, link string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note{userID, title, link})
}

type fakeLimiter struct {
	mu   sync.Mutex
	deny bool
	keys []string
}

func (l *fakeLimiter) Allow(key string, _ int, _ time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
	return !l.deny
}

type fixture struct {
	t       *testing.T
	db      *gorm.DB
	svc     *Service
	tokens  *captoken.Service
	mail    *fakeMailer
	notes   *fakeNotifier
	limiter *fakeLimiter
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:       t,
		db:      testutil.OpenDB(t),
		mail:    &fakeMailer{},
		notes:   &fakeNotifier{},
		limiter: &fakeLimiter{},
		now:     t0,
	}
	clock := func() time.Time { return f.now }
	f.tokens = captoken.New("test-signing-secret", 30*24*time.Hour).WithClock(clock)
	f.svc = New(f.db, f.tokens, f.mail, f.notes, f.limiter, Config{
		PublicBaseURL: baseURL,
		RequestTTL:    14 * 24 * time.Hour,
		Limits:        Limits{OtpIssue: 5, OtpVerify: 10, Window: time.Minute},
	}, WithClock(clock))
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

// create makes a request owned by staff-1 in tenant acme and returns it with
// the signer token from the emailed link.
func (f *fixture) create() (*models.SignatureRequest, string) {
	f.t.Helper()
	out, err := f.svc.Create(context.Background(), CreateInput{
		RequesterID:   "staff-1",
		TenantSchema:  "acme",
		DocumentTitle: "Service Agreement",
		SignerName:    "Ada Lovelace",
		SignerEmail:   "ada@example.com",
	})
	if err != nil {
		f.t.Fatalf("Create() error = %v", err)
	}
	return out.Request, strings.TrimPrefix(out.SigningURL, baseURL+"/sign/")
}

// requestOTP issues a code and returns it from the captured email.
func (f *fixture) requestOTP(token string) string {
	f.t.Helper()
	if _, err := f.svc.RequestOTP(context.Background(), token, signer); err != nil {
		f.t.Fatalf("RequestOTP() error = %v", err)
	}
	return f.mail.lastCode(f.t)
}

func (f *fixture) reload(id string) *models.SignatureRequest {
	f.t.Helper()
	var req models.SignatureRequest
	if err := f.db.Take(&req, "id = ?", id).Error; err != nil {
		f.t.Fatal(err)
	}
	return &req
}

func (f *fixture) audits(id string, actions ...models.AuditAction) int64 {
	f.t.Helper()
	n, err := audit.Count(f.db, id, actions...)
	if err != nil {
		f.t.Fatal(err)
	}
	return n
}

func (f *fixture) otps(id string) []models.SignatureOtp {
	f.t.Helper()
	var rows []models.SignatureOtp
	if err := f.db.Where("request_id = ?", id).Order("created_at").Find(&rows).Error; err != nil {
		f.t.Fatal(err)
	}
	return rows
}

func wrongCode(code string) string {
	if code == "000000" {
		return "000001"
	}
	return "000000"
}
