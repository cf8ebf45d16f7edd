package drafts

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sub", "drafts.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	if _, err := s.Get(ctx, "d1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on empty = %v", err)
	}
	if err := s.Put(ctx, "d1", []byte(`{"name":"a"}`)); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "d1", []byte(`{"name":"b"}`)); err != nil {
		t.Fatal(err)
	}
	d, err := s.Get(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if string(d.Payload) != `{"name":"b"}` || d.SavedAt.IsZero() {
		t.Fatalf("got %+v", d)
	}
	if err := s.Delete(ctx, "d1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, "d1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete = %v", err)
	}
}

func TestKeysAndReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "drafts.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{NewDesignKey, "d2"} {
		if err := s.Put(ctx, k, []byte("{}")); err != nil {
			t.Fatal(err)
		}
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Fatalf("keys = %v", keys)
	}
}
