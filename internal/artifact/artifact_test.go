package artifact

import (
	"context"
	"testing"

	apperrors "github.com/fieldline/geostack/internal/errors"
)

// stores returns every backend that can run without external services.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	fs, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}
	return map[string]Store{
		"memory": NewMemory(),
		"fs":     fs,
	}
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			payload := []byte(`{"hello":"world"}`)

			if err := s.Put(ctx, "stacks/s-1/a.json", payload, "application/json"); err != nil {
				t.Fatalf("Put = %v", err)
			}

			data, contentType, err := s.Get(ctx, "stacks/s-1/a.json")
			if err != nil {
				t.Fatalf("Get = %v", err)
			}
			if string(data) != string(payload) {
				t.Errorf("data = %q, want %q", data, payload)
			}
			if contentType != "application/json" {
				t.Errorf("content type = %q, want application/json", contentType)
			}
		})
	}
}

func TestStore_PutReplaces(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s.Put(ctx, "k", []byte("old"), "text/csv")
			s.Put(ctx, "k", []byte("new"), "text/csv")

			data, _, err := s.Get(ctx, "k")
			if err != nil {
				t.Fatalf("Get = %v", err)
			}
			if string(data) != "new" {
				t.Errorf("data = %q, want new", data)
			}
		})
	}
}

func TestStore_GetMissing(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, _, err := s.Get(context.Background(), "nope")
			if !apperrors.IsNotFound(err) {
				t.Fatalf("Get missing = %v, want not-found", err)
			}
		})
	}
}

func TestOpen_SelectsDriver(t *testing.T) {
	ctx := context.Background()

	if _, err := Open(ctx, Config{Driver: "memory"}); err != nil {
		t.Errorf("Open(memory) = %v", err)
	}
	if _, err := Open(ctx, Config{Driver: "fs", Root: t.TempDir()}); err != nil {
		t.Errorf("Open(fs) = %v", err)
	}
	if _, err := Open(ctx, Config{Driver: "gcs"}); !apperrors.Is(err, apperrors.ErrInvalidConfig) {
		t.Errorf("Open(gcs) = %v, want ErrInvalidConfig", err)
	}
	if _, err := NewS3(ctx, S3Config{}); !apperrors.Is(err, apperrors.ErrMissingField) {
		t.Errorf("NewS3 without bucket = %v, want ErrMissingField", err)
	}
}
