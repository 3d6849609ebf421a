package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jmcleod/ironcert/storage"
)

func newRecord(uid string) *storage.CertificateRecord {
	return &storage.CertificateRecord{
		UniqueCertificateID: uid,
		TemplateID:          1,
		UserID:              42,
		GeneratedBody:       "<p>Hello</p>",
		State:               1,
		IssuedOn:            time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()

	t.Run("InsertAndLoad", func(t *testing.T) {
		id, err := repo.Insert(ctx, newRecord("CERT-11111"))
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		if id != 1 {
			t.Errorf("expected first id 1, got %d", id)
		}

		got, err := repo.Load(ctx, id)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if got.UniqueCertificateID != "CERT-11111" || got.ID != id {
			t.Errorf("Load returned wrong record: %+v", got)
		}

		// Test isolation (cloning)
		got.GeneratedBody = "tampered"
		got2, _ := repo.Load(ctx, id)
		if got2.GeneratedBody == "tampered" {
			t.Error("Memory repository should return clones of records")
		}
	})

	t.Run("LoadByUniqueID", func(t *testing.T) {
		got, err := repo.LoadByUniqueID(ctx, "CERT-11111")
		if err != nil {
			t.Fatalf("LoadByUniqueID failed: %v", err)
		}
		if got.ID != 1 {
			t.Errorf("expected id 1, got %d", got.ID)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := repo.Load(ctx, 999); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if _, err := repo.LoadByUniqueID(ctx, "CERT-00000"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if err := repo.SetState(ctx, 999, 0); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Exists", func(t *testing.T) {
		ok, err := repo.Exists(ctx, "CERT-11111")
		if err != nil || !ok {
			t.Errorf("Exists(CERT-11111) = %v, %v", ok, err)
		}
		ok, err = repo.Exists(ctx, "CERT-22222")
		if err != nil || ok {
			t.Errorf("Exists(CERT-22222) = %v, %v", ok, err)
		}
	})

	t.Run("DuplicateRejected", func(t *testing.T) {
		_, err := repo.Insert(ctx, newRecord("CERT-11111"))
		if !errors.Is(err, storage.ErrDuplicateKey) {
			t.Errorf("expected ErrDuplicateKey, got %v", err)
		}
	})

	t.Run("SetState", func(t *testing.T) {
		if err := repo.SetState(ctx, 1, 0); err != nil {
			t.Fatalf("SetState failed: %v", err)
		}
		got, _ := repo.Load(ctx, 1)
		if got.State != 0 {
			t.Errorf("expected state 0, got %d", got.State)
		}
	})

	t.Run("List", func(t *testing.T) {
		other := newRecord("CERT-33333")
		other.Client = "com_tjlms.course"
		other.ClientID = 5
		if _, err := repo.Insert(ctx, other); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		all, err := repo.List(ctx, storage.CertificateFilter{})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(all) != 2 || all[0].ID > all[1].ID {
			t.Errorf("expected 2 records ordered by id, got %+v", all)
		}
		filtered, _ := repo.List(ctx, storage.CertificateFilter{Client: "com_tjlms.course", ClientID: 5})
		if len(filtered) != 1 || filtered[0].UniqueCertificateID != "CERT-33333" {
			t.Errorf("unexpected filtered list: %+v", filtered)
		}
	})
}

func TestMemoryRepositoryConcurrentDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Insert(ctx, newRecord("CERT-RACE")); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if successes != 1 {
		t.Errorf("expected exactly one successful insert, got %d", successes)
	}
}

func TestMemoryTemplates(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()

	id, err := repo.PutTemplate(ctx, &storage.TemplateRecord{Title: "Course", Body: "Hello {user.name}"})
	if err != nil {
		t.Fatalf("PutTemplate failed: %v", err)
	}
	got, err := repo.GetTemplate(ctx, id)
	if err != nil {
		t.Fatalf("GetTemplate failed: %v", err)
	}
	if got.Body != "Hello {user.name}" {
		t.Errorf("unexpected body %q", got.Body)
	}

	if _, err := repo.PutTemplate(ctx, &storage.TemplateRecord{ID: 10, Title: "Pinned"}); err != nil {
		t.Fatalf("PutTemplate with id failed: %v", err)
	}
	next, _ := repo.PutTemplate(ctx, &storage.TemplateRecord{Title: "After"})
	if next != 11 {
		t.Errorf("expected id after pinned template to be 11, got %d", next)
	}

	if _, err := repo.GetTemplate(ctx, 404); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	repo := NewRepository()
	if _, err := repo.Insert(ctx, newRecord(fmt.Sprintf("CERT-%d", 1))); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
