package signature

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"esign-backend/database"
	"esign-backend/models"

	"gorm.io/gorm"
)

func seedCompany(t *testing.T, f *fixture, schema, name string) {
	t.Helper()
	user := models.User{FirstName: "Grace", LastName: "Hopper", Email: schema + "@staff.test", SchemaName: schema}
	if err := user.SetPassword("correct horse"); err != nil {
		t.Fatal(err)
	}
	if err := f.db.Create(&user).Error; err != nil {
		t.Fatal(err)
	}
	person := models.ContactPerson{FirstName: "Grace", LastName: "Hopper"}
	if err := f.db.Create(&person).Error; err != nil {
		t.Fatal(err)
	}
	company := models.Company{CompanyName: name, UserId: user.Id, PId: person.Id, SchemaName: schema}
	if err := f.db.Create(&company).Error; err != nil {
		t.Fatal(err)
	}
}

func TestCreateRecordsAndEmailsLink(t *testing.T) {
	f := newFixture(t)
	req, token := f.create()

	if req.Status != models.StatusPending || !req.ExpiresAt.Equal(t0.Add(14*24*time.Hour)) {
		t.Errorf("created = %+v", req)
	}
	if n := f.audits(req.ID, models.AuditCreated); n != 1 {
		t.Errorf("created rows = %d", n)
	}
	if id, err := f.tokens.Verify(token); err != nil || id != req.ID {
		t.Errorf("link token resolves to %q, %v", id, err)
	}
	if f.mail.count() != 1 || f.mail.sent[0].to != "ada@example.com" {
		t.Errorf("mails = %+v", f.mail.sent)
	}
}

func TestCreateReportsEmailFailure(t *testing.T) {
	f := newFixture(t)
	f.mail.fail = true

	out, err := f.svc.Create(context.Background(), CreateInput{
		RequesterID: "staff-1", TenantSchema: "acme",
		DocumentTitle: "NDA", SignerName: "Bob", SignerEmail: "bob@example.com",
		ExpiresInDays: 3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.EmailSent {
		t.Error("EmailSent = true")
	}
	if !out.Request.ExpiresAt.Equal(t0.Add(3 * 24 * time.Hour)) {
		t.Errorf("expires_at = %v", out.Request.ExpiresAt)
	}
}

func TestCreateFromClient(t *testing.T) {
	f := newFixture(t)
	if err := database.CreateTenantSchema(f.db, "acme"); err != nil {
		t.Fatal(err)
	}
	customer := models.Customer{
		CompanyName: "Initech", Address: "1 Loop", City: "Austin", Country: "US", Zip: "73301",
		Email: "peter@initech.test", FirstName: "Peter", LastName: "Gibbons",
		PhoneNumber: "1", MobileNumber: "2", Salutation: "Mr", Title: "",
	}
	if err := f.db.Create(&customer).Error; err != nil {
		t.Fatal(err)
	}

	out, err := f.svc.Create(context.Background(), CreateInput{
		RequesterID: "staff-1", TenantSchema: "acme",
		DocumentTitle: "TPS Report", SignerClientID: &customer.Id,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Request.SignerName != "Peter Gibbons" || out.Request.SignerEmail != "peter@initech.test" {
		t.Errorf("signer = %q <%s>", out.Request.SignerName, out.Request.SignerEmail)
	}
	if out.Request.SignerClientID == nil || *out.Request.SignerClientID != customer.Id {
		t.Errorf("client id = %v", out.Request.SignerClientID)
	}

	missing := uint(999)
	_, err = f.svc.Create(context.Background(), CreateInput{
		RequesterID: "staff-1", TenantSchema: "acme",
		DocumentTitle: "TPS Report", SignerClientID: &missing,
	})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("unknown client: error = %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	valid := CreateInput{
		RequesterID: "staff-1", TenantSchema: "acme",
		DocumentTitle: "NDA", SignerName: "Bob", SignerEmail: "bob@example.com",
	}
	tests := []struct {
		name   string
		mutate func(*CreateInput)
	}{
		{"missing title", func(in *CreateInput) { in.DocumentTitle = "  " }},
		{"missing signer", func(in *CreateInput) { in.SignerName = "" }},
		{"bad email", func(in *CreateInput) { in.SignerEmail = "bob" }},
		{"display name email", func(in *CreateInput) { in.SignerEmail = "Bob <bob@example.com>" }},
		{"expiry too long", func(in *CreateInput) { in.ExpiresInDays = 91 }},
		{"negative expiry", func(in *CreateInput) { in.ExpiresInDays = -1 }},
		{"no tenant", func(in *CreateInput) { in.TenantSchema = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			in := valid
			tt.mutate(&in)
			if _, err := f.svc.Create(context.Background(), in); !errors.Is(err, ErrValidation) {
				t.Fatalf("error = %v, want ErrValidation", err)
			}
			if f.mail.count() != 0 {
				t.Error("email sent for rejected input")
			}
		})
	}
}

func TestCancelTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, _ := f.create()

	if err := f.svc.Cancel(ctx, "acme", req.ID, "staff-1", Client{IP: "10.0.0.2"}); err != nil {
		t.Fatal(err)
	}
	err := f.svc.Cancel(ctx, "acme", req.ID, "staff-1", Client{IP: "10.0.0.2"})
	var se *StateError
	if !errors.As(err, &se) || se.Status != models.StatusCancelled || se.Action != "cancel" {
		t.Fatalf("second cancel: error = %v", err)
	}
	if n := f.audits(req.ID, models.AuditCancelled); n != 1 {
		t.Errorf("cancelled rows = %d", n)
	}
	if got := f.reload(req.ID); got.Status != models.StatusCancelled || got.CancelledAt == nil {
		t.Errorf("after cancel: %+v", got)
	}
	if len(f.notes.notes) != 0 {
		t.Errorf("requester notified about own cancel: %+v", f.notes.notes)
	}
}

func TestCancelByColleagueNotifiesRequester(t *testing.T) {
	f := newFixture(t)
	req, _ := f.create()

	if err := f.svc.Cancel(context.Background(), "acme", req.ID, "staff-2", Client{}); err != nil {
		t.Fatal(err)
	}
	if len(f.notes.notes) != 1 || f.notes.notes[0].userID != "staff-1" || f.notes.notes[0].link != "/signature-requests/"+req.ID {
		t.Errorf("notifications = %+v", f.notes.notes)
	}
}

func TestCancelAfterSign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, token := f.create()
	if err := f.svc.Sign(ctx, token, f.requestOTP(token), signer); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.Cancel(ctx, "acme", req.ID, "staff-1", Client{}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("error = %v", err)
	}
	if n := f.audits(req.ID, models.AuditCancelled); n != 0 {
		t.Errorf("cancelled rows = %d", n)
	}
}

func TestConcurrentDeclineAndCancel(t *testing.T) {
	for round := 0; round < 5; round++ {
		f := newFixture(t)
		req, token := f.create()
		ctx := context.Background()

		var (
			wg       sync.WaitGroup
			declined error
			canceled error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			declined = f.svc.Decline(ctx, token, nil, signer)
		}()
		go func() {
			defer wg.Done()
			canceled = f.svc.Cancel(ctx, "acme", req.ID, "staff-2", Client{})
		}()
		wg.Wait()

		if (declined == nil) == (canceled == nil) {
			t.Fatalf("round %d: decline=%v cancel=%v, want exactly one success", round, declined, canceled)
		}
		loser := declined
		if loser == nil {
			loser = canceled
		}
		if !errors.Is(loser, ErrInvalidState) {
			t.Errorf("round %d: loser error = %v", round, loser)
		}

		status := f.reload(req.ID).Status
		if status != models.StatusDeclined && status != models.StatusCancelled {
			t.Errorf("round %d: status = %s", round, status)
		}
		if n := f.audits(req.ID, models.AuditDeclined, models.AuditCancelled); n != 1 {
			t.Errorf("round %d: terminal audit rows = %d", round, n)
		}
	}
}

func TestStaleTransitionIsRejected(t *testing.T) {
	f := newFixture(t)
	req, token := f.create()
	stale := f.reload(req.ID)

	if err := f.svc.Decline(context.Background(), token, nil, signer); err != nil {
		t.Fatal(err)
	}

	err := f.db.Transaction(func(tx *gorm.DB) error {
		if err := f.svc.setStatus(tx, stale, "cancel", models.StatusCancelled, nil); err != nil {
			return err
		}
		return f.svc.record(tx, stale, models.AuditCancelled, Client{}, nil)
	})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("error = %v, want ErrInvalidState", err)
	}
	var se *StateError
	if !errors.As(err, &se) || se.Status != models.StatusDeclined {
		t.Errorf("state error = %v, want current status DECLINED", err)
	}
	if got := f.reload(req.ID).Status; got != models.StatusDeclined {
		t.Errorf("status = %s", got)
	}
	if n := f.audits(req.ID, models.AuditCancelled); n != 0 {
		t.Errorf("cancelled rows = %d", n)
	}
}

func TestTransitionLosingRaceRollsBack(t *testing.T) {
	f := newFixture(t)
	req, _ := f.create()

	_, err := f.svc.transition(context.Background(), "cancel", byID(req.ID), func(tx *gorm.DB, locked *models.SignatureRequest) error {
		// Another writer closes the request after it was read.
		if err := tx.Model(&models.SignatureRequest{}).Where("id = ?", locked.ID).
			Update("status", models.StatusSigned).Error; err != nil {
			return err
		}
		if err := f.svc.setStatus(tx, locked, "cancel", models.StatusCancelled, nil); err != nil {
			return err
		}
		return f.svc.record(tx, locked, models.AuditCancelled, Client{}, nil)
	})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("error = %v, want ErrInvalidState", err)
	}
	if got := f.reload(req.ID).Status; got != models.StatusPending {
		t.Errorf("status = %s, want PENDING after rollback", got)
	}
	if n := f.audits(req.ID); n != 1 {
		t.Errorf("audit rows = %d, want only created", n)
	}
}

func TestTenantIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, _ := f.create()

	if _, err := f.svc.Get(ctx, "globex", req.ID); !errors.Is(err, ErrRequestNotFound) {
		t.Errorf("Get: %v", err)
	}
	if _, err := f.svc.AuditTrail(ctx, "globex", req.ID); !errors.Is(err, ErrRequestNotFound) {
		t.Errorf("AuditTrail: %v", err)
	}
	if err := f.svc.Cancel(ctx, "globex", req.ID, "intruder", Client{}); !errors.Is(err, ErrRequestNotFound) {
		t.Errorf("Cancel: %v", err)
	}
	if _, err := f.svc.ResendLink(ctx, "globex", req.ID); !errors.Is(err, ErrRequestNotFound) {
		t.Errorf("ResendLink: %v", err)
	}
	if got := f.reload(req.ID).Status; got != models.StatusPending {
		t.Errorf("status = %s", got)
	}
}

func TestListNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var ids []string
	for i := 0; i < 3; i++ {
		req, _ := f.create()
		ids = append(ids, req.ID)
		f.advance(time.Minute)
	}
	if err := f.svc.Cancel(ctx, "acme", ids[0], "staff-1", Client{}); err != nil {
		t.Fatal(err)
	}

	rows, total, err := f.svc.List(ctx, "acme", ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(rows) != 3 || rows[0].ID != ids[2] || rows[2].ID != ids[0] {
		t.Fatalf("list = %d rows (total %d)", len(rows), total)
	}

	cancelled := models.StatusCancelled
	rows, total, err = f.svc.List(ctx, "acme", ListFilter{Status: &cancelled})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || rows[0].ID != ids[0] {
		t.Errorf("filtered list = %+v", rows)
	}

	rows, total, err = f.svc.List(ctx, "acme", ListFilter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(rows) != 1 || rows[0].ID != ids[1] {
		t.Errorf("paged list = %+v (total %d)", rows, total)
	}

	rows, _, err = f.svc.List(ctx, "globex", ListFilter{})
	if err != nil || len(rows) != 0 {
		t.Errorf("other tenant sees %d rows, %v", len(rows), err)
	}
}

func TestResendLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, _ := f.create()

	url, err := f.svc.ResendLink(ctx, "acme", req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if f.mail.count() != 2 || url == "" {
		t.Errorf("mails = %d url = %q", f.mail.count(), url)
	}
	if n := f.audits(req.ID); n != 1 {
		t.Errorf("resend wrote audit rows: %d", n)
	}

	f.mail.fail = true
	if _, err := f.svc.ResendLink(ctx, "acme", req.ID); !errors.Is(err, ErrEmailDelivery) {
		t.Errorf("failed delivery: %v", err)
	}

	f.mail.fail = false
	if err := f.svc.Cancel(ctx, "acme", req.ID, "staff-1", Client{}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.ResendLink(ctx, "acme", req.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("closed request: %v", err)
	}
}
