// package sources implements the contact source backends and the registry that loads them.
//
// Every backend satisfies [Source]. Backends are enumerated in a static table mapping a backend
// tag (csv, ldap, personal, phonebook, wazo, office365) to its [Constructor].
package sources

import (
	"context"
	"net/http"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dird/internal/formatter"
	"github.com/desertthunder/dird/internal/metrics"
	"github.com/desertthunder/dird/internal/models"
	"github.com/desertthunder/dird/internal/shared"
	"github.com/goccy/go-json"
)

// Backend tags.
const (
	BackendCSV       = "csv"
	BackendLDAP      = "ldap"
	BackendPersonal  = "personal"
	BackendPhonebook = "phonebook"
	BackendWazo      = "wazo"
	BackendOffice365 = "office365"
)

// Args carries the identity of the caller to stateful backends.
type Args struct {
	UserUUID   string
	TenantUUID string
	Token      string
	// External holds tokens for third-party services keyed by service name, e.g. "microsoft".
	External map[string]string
}

// Source is one configured instance of a backend.
type Source interface {
	// Name returns the configured source name.
	Name() string

	// Search returns the contacts whose searched columns contain term, ignoring case.
	Search(ctx context.Context, term string, args Args) ([]models.Contact, error)

	// FirstMatch returns a contact whose first-matched columns equal term, or nil.
	FirstMatch(ctx context.Context, term string, args Args) (*models.Contact, error)

	// List returns the contacts with the given unique ids. Backends without unique ids return nothing.
	List(ctx context.Context, ids []string, args Args) ([]models.Contact, error)
}

// Lister is implemented by sources able to enumerate every contact visible to the caller.
type Lister interface {
	All(ctx context.Context, args Args) ([]models.Contact, error)
}

// PersonalStore is the storage the personal backend reads.
type PersonalStore interface {
	List(ctx context.Context, owner string) ([]models.PersonalContact, error)
	Search(ctx context.Context, owner string, columns []string, term string) ([]models.PersonalContact, error)
	FirstMatch(ctx context.Context, owner string, columns []string, term string) (*models.PersonalContact, error)
	ListByIDs(ctx context.Context, owner string, ids []string) ([]models.PersonalContact, error)
}

// PhonebookStore resolves the phonebook a phonebook source reads.
type PhonebookStore interface {
	Get(ctx context.Context, tenant string, id int64) (*models.Phonebook, error)
	GetByName(ctx context.Context, tenant, name string) (*models.Phonebook, error)
}

// PhonebookContactStore is the storage the phonebook backend reads.
type PhonebookContactStore interface {
	Search(ctx context.Context, phonebookID int64, columns []string, term string) ([]models.PhonebookContact, error)
	FirstMatch(ctx context.Context, phonebookID int64, columns []string, term string) (*models.PhonebookContact, error)
	ListByIDs(ctx context.Context, phonebookID int64, ids []string) ([]models.PhonebookContact, error)
}

// Dependencies are the shared collaborators handed to every constructor.
type Dependencies struct {
	Logger            *log.Logger
	Metrics           *metrics.Metrics
	Personal          PersonalStore
	Phonebooks        PhonebookStore
	PhonebookContacts PhonebookContactStore
	// HTTPClient is used by HTTP backends; nil means [http.DefaultClient].
	HTTPClient *http.Client
}

// Constructor builds a source from its configuration. A returned error excludes the source.
type Constructor func(ctx context.Context, cfg models.SourceConfig, deps Dependencies) (Source, error)

var constructors = map[string]Constructor{
	BackendCSV:       NewCSVSource,
	BackendLDAP:      NewLDAPSource,
	BackendPersonal:  NewPersonalSource,
	BackendPhonebook: NewPhonebookSource,
	BackendWazo:      NewWazoSource,
	BackendOffice365: NewOffice365Source,
}

// Backends returns the known backend tags, sorted.
func Backends() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsBackend reports whether name is a known backend tag.
func IsBackend(name string) bool {
	_, ok := constructors[name]
	return ok
}

// remote reports whether a backend talks to a network service and gets a circuit breaker.
func remote(backend string) bool {
	return backend == BackendLDAP || backend == BackendWazo || backend == BackendOffice365
}

// newContact builds a contact of cfg, deriving its format columns.
func newContact(cfg models.SourceConfig, id string, fields map[string]string) models.Contact {
	return models.Contact{
		Source:  cfg.Name,
		Backend: cfg.Backend,
		ID:      id,
		Fields:  formatter.ApplyFormatColumns(cfg.FormatColumns, fields),
	}
}

// uniqueID identifies a contact by its unique column values; empty when no unique columns are configured.
// A single column is used as is, several are encoded as a JSON array.
func uniqueID(columns []string, fields map[string]string) string {
	switch len(columns) {
	case 0:
		return ""
	case 1:
		return fields[columns[0]]
	}
	values := make([]string, 0, len(columns))
	for _, c := range columns {
		values = append(values, fields[c])
	}
	id, _ := json.Marshal(values)
	return string(id)
}

// splitUniqueID is the inverse of [uniqueID]. ok is false when id does not hold one value per column.
func splitUniqueID(columns []string, id string) (values []string, ok bool) {
	switch len(columns) {
	case 0:
		return nil, false
	case 1:
		return []string{id}, true
	}
	if err := json.Unmarshal([]byte(id), &values); err != nil || len(values) != len(columns) {
		return nil, false
	}
	return values, true
}

// containsAny reports whether one of columns of fields contains term, ignoring case and accents.
func containsAny(fields map[string]string, columns []string, term string) bool {
	for _, c := range columns {
		if v, ok := fields[c]; ok && shared.ContainsFold(v, term) {
			return true
		}
	}
	return false
}

// equalsAny reports whether one of columns of fields is exactly term.
func equalsAny(fields map[string]string, columns []string, term string) bool {
	for _, c := range columns {
		if v, ok := fields[c]; ok && v == term {
			return true
		}
	}
	return false
}

func idSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func sortConfigs(configs []models.SourceConfig) {
	sort.Slice(configs, func(i, j int) bool { return configs[i].Name < configs[j].Name })
}
