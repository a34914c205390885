package uuid_test

import (
	"regexp"
	"testing"

	"github.com/jortega/taskdesk/internal/util/uuid"
)

var uuidV7Format = regexp.MustCompile(
	`^[0-9a-f]{8}-[0-9a-f]{4}-7[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`,
)

func TestNewV7(t *testing.T) {
	t.Parallel()

	id, err := uuid.NewV7()
	if err != nil {
		t.Fatalf("NewV7() error = %v", err)
	}

	if got := id.String(); !uuidV7Format.MatchString(got) {
		t.Errorf("NewV7() = %q, want v7 format with RFC 4122 variant", got)
	}

	if got := len(id.Bytes()); got != uuid.UUIDSize {
		t.Errorf("Bytes() length = %d, want %d", got, uuid.UUIDSize)
	}
}

func TestNewV7_Unique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{})

	for range 1000 {
		id, err := uuid.NewV7()
		if err != nil {
			t.Fatalf("NewV7() error = %v", err)
		}

		s := id.String()
		if _, dup := seen[s]; dup {
			t.Fatalf("NewV7() produced duplicate %q", s)
		}

		seen[s] = struct{}{}
	}
}
