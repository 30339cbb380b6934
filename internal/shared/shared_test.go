package shared

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestFold(t *testing.T) {
	tc := []struct {
		name string
		in   string
		want string
	}{
		{name: "lowercase", in: "ALICE", want: "alice"},
		{name: "accents", in: "Émile Zoé", want: "emile zoe"},
		{name: "cedilla", in: "François", want: "francois"},
		{name: "digits untouched", in: "555-1234", want: "555-1234"},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := Fold(tt.in); got != tt.want {
				t.Errorf("Fold(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	t.Run("ContainsFold", func(t *testing.T) {
		if !ContainsFold("Hélène Dupont", "LENE") {
			t.Error("expected accent and case insensitive match")
		}
		if ContainsFold("Bob", "ali") {
			t.Error("unexpected match")
		}
	})
}

func TestContentHash(t *testing.T) {
	t.Run("independent of insertion order", func(t *testing.T) {
		a := map[string]string{"firstname": "Alice", "lastname": "Smith"}
		b := map[string]string{"lastname": "Smith", "firstname": "Alice"}
		if ContentHash(a) != ContentHash(b) {
			t.Error("expected equal hashes")
		}
	})

	t.Run("key value boundaries matter", func(t *testing.T) {
		a := map[string]string{"ab": "c"}
		b := map[string]string{"a": "bc"}
		if ContentHash(a) == ContentHash(b) {
			t.Error("expected different hashes")
		}
	})
}

func TestSourceUUID(t *testing.T) {
	if SourceUUID("my_csv") != SourceUUID("my_csv") {
		t.Error("expected stable uuid for the same name")
	}
	if SourceUUID("my_csv") == SourceUUID("other") {
		t.Error("expected different uuids for different names")
	}
}

func TestErrors(t *testing.T) {
	t.Run("wrapped sentinels keep their kind", func(t *testing.T) {
		err := fmt.Errorf("failed to get phonebook: %w", ErrNoSuchPhonebook)
		if !errors.Is(err, ErrNoSuchPhonebook) {
			t.Error("expected errors.Is to match")
		}
		if KindOf(err) != KindNotFound {
			t.Errorf("expected not found kind, got %v", KindOf(err))
		}
		if StatusCode(err) != http.StatusNotFound {
			t.Errorf("expected 404, got %d", StatusCode(err))
		}
	})

	t.Run("validation errors list violations", func(t *testing.T) {
		err := NewValidationError(ErrInvalidPersonalContact, "key must not be empty", "key must be ASCII")
		if !errors.Is(err, ErrInvalidPersonalContact) {
			t.Error("expected errors.Is to match")
		}
		if got := Violations(err); len(got) != 2 {
			t.Errorf("expected 2 violations, got %v", got)
		}
		if !strings.Contains(err.Error(), "key must be ASCII") {
			t.Errorf("expected message to list violations, got %q", err.Error())
		}
		if StatusCode(err) != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", StatusCode(err))
		}
	})

	t.Run("status codes", func(t *testing.T) {
		tc := []struct {
			err  error
			want int
		}{
			{nil, http.StatusOK},
			{ErrDuplicatedFavorite, http.StatusConflict},
			{ErrUnauthorized, http.StatusUnauthorized},
			{ErrInvalidOrder, http.StatusBadRequest},
			{errors.New("boom"), http.StatusInternalServerError},
		}
		for _, tt := range tc {
			if got := StatusCode(tt.err); got != tt.want {
				t.Errorf("StatusCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		}
	})
}

func TestConfigureLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf)

	ConfigureLogger(logger, LogConfig{Level: "debug"})
	if logger.GetLevel() != log.DebugLevel {
		t.Errorf("expected debug level, got %v", logger.GetLevel())
	}

	ConfigureLogger(logger, LogConfig{Level: "nonsense"})
	if logger.GetLevel() != log.DebugLevel {
		t.Error("unknown level should keep the current level")
	}
	if !strings.Contains(buf.String(), "unknown log level") {
		t.Error("expected a warning for the unknown level")
	}
}
