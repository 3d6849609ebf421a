package certificate

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestIssue_EndToEnd(t *testing.T) {
	ctx := context.Background()
	repo := newRecordingRepo()
	tmplID := addTemplate(t, repo, "Hello {user.name}, score {user.score}", "")

	issuer := NewIssuer(repo, repo, WithLogger(quietLogger))
	cert, err := issuer.Issue(ctx, 7, tmplID, Payload{
		"user": map[string]any{"name": "Ann", "score": 0},
	}, WithPrefix("CERT"))
	require.NoError(t, err)

	assert.Equal(t, "Hello Ann, score 0", cert.GeneratedBody)
	assert.Regexp(t, `^CERT-\d{5,30}$`, cert.UniqueID)
	assert.True(t, cert.ExpiredOn.Never())
	assert.Equal(t, StateActive, cert.State)
	assert.NotZero(t, cert.ID)

	res, err := NewValidator(repo).Validate(ctx, cert.UniqueID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeValid, res.Outcome)
	assert.Equal(t, cert.GeneratedBody, res.Certificate.GeneratedBody)
	assert.Equal(t, int64(7), res.Certificate.UserID)
}

func TestIssue_EmptyRequiredFieldsWriteNothing(t *testing.T) {
	repo := newRecordingRepo()
	tmplID := addTemplate(t, repo, "body", "")
	issuer := NewIssuer(repo, repo, WithLogger(quietLogger))

	_, err := issuer.Issue(context.Background(), 0, tmplID, nil)
	require.ErrorIs(t, err, ErrEmptyRequiredField)
	var ie *IssuanceError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "user_id", ie.Field)

	_, err = issuer.Issue(context.Background(), 5, 0, nil)
	require.ErrorIs(t, err, ErrEmptyRequiredField)
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "template_id", ie.Field)

	assert.Zero(t, repo.insertCount())
}

func TestIssue_TemplateNotFound(t *testing.T) {
	repo := newRecordingRepo()
	_, err := NewIssuer(repo, repo, WithLogger(quietLogger)).Issue(context.Background(), 1, 404, nil)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
	assert.Zero(t, repo.insertCount())
}

func TestIssue_InvalidExpiryWritesNothing(t *testing.T) {
	repo := newRecordingRepo()
	tmplID := addTemplate(t, repo, "body", "")
	_, err := NewIssuer(repo, repo, WithLogger(quietLogger)).Issue(context.Background(), 1, tmplID, nil, WithExpiry("not-a-date"))
	require.ErrorIs(t, err, ErrInvalidExpiry)
	var ie *IssuanceError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "expiry", ie.Field)
	assert.Zero(t, repo.insertCount())
}

func TestIssue_OptionsAreApplied(t *testing.T) {
	repo := newRecordingRepo()
	tmplID := addTemplate(t, repo, "body", "")
	clock := newFixedClock(time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC))

	cert, err := NewIssuer(repo, repo, WithLogger(quietLogger), WithClock(clock.Now)).Issue(context.Background(), 9, tmplID, nil,
		WithPrefix("LMS"),
		WithRandomLength(8),
		WithFixedLength(true),
		WithExpiry("2025-12-31"),
		WithComment("manual"),
		WithClient("com_tjlms.course", 12),
	)
	require.NoError(t, err)
	assert.Regexp(t, `^LMS-\d{8}$`, cert.UniqueID)
	assert.Equal(t, "2025-12-31 23:59:59", cert.ExpiredOn.String())
	assert.Equal(t, "manual", cert.Comment)
	assert.Equal(t, "com_tjlms.course", cert.Client)
	assert.Equal(t, int64(12), cert.ClientID)
	assert.Equal(t, clock.Now(), cert.IssuedOn)

	stored, err := repo.Load(context.Background(), cert.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ExpiredOn)
	assert.Equal(t, "manual", stored.Comment)
}

func TestIssue_DefaultsFromIssuer(t *testing.T) {
	repo := newRecordingRepo()
	tmplID := addTemplate(t, repo, "body", "")
	cert, err := NewIssuer(repo, repo, WithLogger(quietLogger),
		WithDefaults(IssueDefaults{Prefix: "ACME", Length: 6, FixedLength: true}),
	).Issue(context.Background(), 1, tmplID, nil)
	require.NoError(t, err)
	assert.Regexp(t, `^ACME-\d{6}$`, cert.UniqueID)
}

func TestIssue_DuplicateKeyRegenerates(t *testing.T) {
	repo := newRecordingRepo()
	repo.duplicates = 2
	tmplID := addTemplate(t, repo, "body", "")

	cert, err := NewIssuer(repo, repo, WithLogger(quietLogger)).Issue(context.Background(), 1, tmplID, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, repo.insertCount())

	all, err := repo.List(context.Background(), storageFilterAll)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, cert.UniqueID, all[0].UniqueCertificateID)
}

func TestIssue_DuplicateKeyExhausted(t *testing.T) {
	repo := newRecordingRepo()
	repo.duplicates = 100
	tmplID := addTemplate(t, repo, "body", "")

	_, err := NewIssuer(repo, repo, WithLogger(quietLogger), WithMaxInsertAttempts(3)).Issue(context.Background(), 1, tmplID, nil)
	assert.ErrorIs(t, err, ErrDuplicateIdentifier)
	assert.Equal(t, 3, repo.insertCount())
}

func TestIssue_StorageFailurePropagates(t *testing.T) {
	repo := newRecordingRepo()
	repo.insertErr = errBoom
	tmplID := addTemplate(t, repo, "body", "")

	_, err := NewIssuer(repo, repo, WithLogger(quietLogger)).Issue(context.Background(), 1, tmplID, nil)
	require.ErrorIs(t, err, errBoom)
	var ie *IssuanceError
	assert.NotErrorAs(t, err, &ie)
}

func TestIssue_CSSInlining(t *testing.T) {
	repo := newRecordingRepo()
	tmplID := addTemplate(t, repo, "<p>{user.name}</p>", "p { color: red; }")

	inliner := inlinerFunc(func(html, css string) (string, error) {
		return strings.Replace(html, "<p>", `<p style="color: red;">`, 1), nil
	})
	cert, err := NewIssuer(repo, repo, WithLogger(quietLogger), WithCSSInliner(inliner)).
		Issue(context.Background(), 1, tmplID, Payload{"user": map[string]any{"name": "Ann"}})
	require.NoError(t, err)
	assert.Equal(t, `<p style="color: red;">Ann</p>`, cert.GeneratedBody)
}

func TestIssue_CSSInliningFailureKeepsBody(t *testing.T) {
	repo := newRecordingRepo()
	tmplID := addTemplate(t, repo, "<p>{user.name}</p>", "p { color: red; }")

	failing := inlinerFunc(func(string, string) (string, error) { return "", errBoom })
	cert, err := NewIssuer(repo, repo, WithLogger(quietLogger), WithCSSInliner(failing)).
		Issue(context.Background(), 1, tmplID, Payload{"user": map[string]any{"name": "Ann"}})
	require.NoError(t, err)
	assert.Equal(t, "<p>Ann</p>", cert.GeneratedBody)
}

func TestIssue_Notification(t *testing.T) {
	repo := newRecordingRepo()
	tmplID := addTemplate(t, repo, "body", "")
	n := &captureNotifier{}

	cert, err := NewIssuer(repo, repo, WithLogger(quietLogger), WithNotifier(n)).Issue(context.Background(), 1, tmplID, nil)
	require.NoError(t, err)
	require.Len(t, n.events, 1)
	ev := n.events[0]
	assert.Equal(t, EventCertificateIssued, ev.Type)
	assert.True(t, ev.IsNew)
	assert.Equal(t, cert.UniqueID, ev.Certificate.UniqueID)
	assert.NotSame(t, cert, ev.Certificate)
}

func TestIssue_NotificationFailureIgnored(t *testing.T) {
	repo := newRecordingRepo()
	tmplID := addTemplate(t, repo, "body", "")
	n := &captureNotifier{err: errBoom}

	cert, err := NewIssuer(repo, repo, WithLogger(quietLogger), WithNotifier(n)).Issue(context.Background(), 1, tmplID, nil)
	require.NoError(t, err)
	ok, err := repo.Exists(context.Background(), cert.UniqueID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIssue_ConcurrentIssuesAreUnique(t *testing.T) {
	repo := newRecordingRepo()
	tmplID := addTemplate(t, repo, "body", "")
	issuer := NewIssuer(repo, repo, WithLogger(quietLogger),
		WithDefaults(IssueDefaults{Prefix: "CERT", Length: 5, FixedLength: true}))

	const n = 50
	ids := make(chan string, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			c, err := issuer.Issue(context.Background(), 1, tmplID, nil)
			if err != nil {
				errs <- err
				return
			}
			ids <- c.UniqueID
		}()
	}
	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		select {
		case err := <-errs:
			t.Fatalf("issue failed: %v", err)
		case id := <-ids:
			assert.False(t, seen[id], "duplicate identifier %s", id)
			seen[id] = true
		}
	}
}

func TestIssuanceError_Message(t *testing.T) {
	err := issuanceErrorf(ErrEmptyRequiredField, "user_id", nil)
	assert.Equal(t, "issuance failed: empty required field: user_id", err.Error())
	err = issuanceErrorf(ErrInvalidExpiry, "expiry", errBoom)
	assert.Equal(t, "issuance failed: invalid expiry: expiry: boom", err.Error())
}
