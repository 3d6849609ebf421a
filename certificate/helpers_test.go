package certificate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmcleod/ironcert/storage"
	"github.com/jmcleod/ironcert/storage/memory"
	"github.com/stretchr/testify/require"
)

// recordingRepo wraps the memory repository, counting writes and optionally
// injecting insert failures.
type recordingRepo struct {
	*memory.Repository

	mu         sync.Mutex
	inserts    int
	duplicates int   // number of leading inserts rejected as duplicates
	insertErr  error // returned by every insert when set
	loadErr    error
}

func newRecordingRepo() *recordingRepo {
	return &recordingRepo{Repository: memory.NewRepository()}
}

func (r *recordingRepo) Insert(ctx context.Context, rec *storage.CertificateRecord) (int64, error) {
	r.mu.Lock()
	r.inserts++
	n := r.inserts
	r.mu.Unlock()
	if r.insertErr != nil {
		return 0, r.insertErr
	}
	if n <= r.duplicates {
		return 0, storage.ErrDuplicateKey
	}
	return r.Repository.Insert(ctx, rec)
}

func (r *recordingRepo) LoadByUniqueID(ctx context.Context, uid string) (*storage.CertificateRecord, error) {
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	return r.Repository.LoadByUniqueID(ctx, uid)
}

func (r *recordingRepo) insertCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inserts
}

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFixedClock(t time.Time) *fixedClock {
	return &fixedClock{t: t}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func addTemplate(t *testing.T, repo storage.TemplateStore, body, css string) int64 {
	t.Helper()
	id, err := repo.PutTemplate(context.Background(), &storage.TemplateRecord{Title: "test", Body: body, TemplateCSS: css})
	require.NoError(t, err)
	return id
}

type inlinerFunc func(html, css string) (string, error)

func (f inlinerFunc) Inline(html, css string) (string, error) { return f(html, css) }

type captureNotifier struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (n *captureNotifier) Notify(_ context.Context, ev Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

var errBoom = errors.New("boom")

var storageFilterAll = storage.CertificateFilter{}
