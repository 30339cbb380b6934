// package models defines the data model for the contact directory
package models

import (
	"time"
)

// UniqueIDField is the reserved field under which a backend stores the composite unique id of a contact.
const UniqueIDField = "__unique_id"

// Service names a profile service.
const (
	ServiceLookup    = "lookup"
	ServiceReverse   = "reverse"
	ServiceFavorites = "favorites"
)

// Column types with special rendering.
const (
	ColumnTypeFavorite = "favorite"
	ColumnTypePersonal = "personal"
	ColumnTypeName     = "name"
	ColumnTypeNumber   = "number"
)

// Contact is a raw record produced by a source: field name to value, no fixed schema.
//
// A nil value in the backend is represented by an absent key.
type Contact struct {
	Source    string            `json:"source"`
	Backend   string            `json:"backend"`
	ID        string            `json:"id,omitempty"`
	Fields    map[string]string `json:"fields"`
	Relations map[string]any    `json:"relations,omitempty"`
	Personal  bool              `json:"personal,omitempty"`
	Deletable bool              `json:"deletable,omitempty"`
}

// Get returns the value of field and whether it is present.
func (c Contact) Get(field string) (string, bool) {
	v, ok := c.Fields[field]
	return v, ok
}

// Column is one display column.
type Column struct {
	Title   string  `toml:"title" json:"title"`
	Field   string  `toml:"field" json:"field"`
	Default *string `toml:"default" json:"default,omitempty"`
	Type    string  `toml:"type" json:"type,omitempty"`
}

// Display is an ordered set of columns shaping raw contacts into a uniform result.
type Display struct {
	Name    string   `toml:"name" json:"name"`
	Tenant  string   `toml:"tenant_uuid" json:"tenant_uuid,omitempty"`
	Columns []Column `toml:"columns" json:"columns"`
}

// Headers returns the column titles in declared order.
func (d *Display) Headers() []string {
	headers := make([]string, 0, len(d.Columns))
	for _, c := range d.Columns {
		headers = append(headers, c.Title)
	}
	return headers
}

// Types returns the column types in declared order.
func (d *Display) Types() []string {
	types := make([]string, 0, len(d.Columns))
	for _, c := range d.Columns {
		types = append(types, c.Type)
	}
	return types
}

// ServiceConfig lists the sources a profile queries for one service.
type ServiceConfig struct {
	Sources []string      `toml:"sources" json:"sources"`
	Timeout time.Duration `toml:"timeout" json:"timeout,omitempty"`
}

// Profile is a named, tenant-scoped grouping of sources per service plus a display.
type Profile struct {
	Name     string                   `toml:"name" json:"name"`
	Tenant   string                   `toml:"tenant_uuid" json:"tenant_uuid,omitempty"`
	Display  string                   `toml:"display" json:"display,omitempty"`
	Services map[string]ServiceConfig `toml:"services" json:"services"`
}

// SourceNames returns the sources the profile declares for service.
func (p *Profile) SourceNames(service string) []string {
	if p.Services == nil {
		return nil
	}
	return p.Services[service].Sources
}

// LDAPConfig holds ldap backend connection parameters.
type LDAPConfig struct {
	URI            string `toml:"uri" json:"uri,omitempty"`
	BaseDN         string `toml:"base_dn" json:"base_dn,omitempty"`
	Username       string `toml:"username" json:"username,omitempty"`
	Password       string `toml:"password" json:"password,omitempty"`
	CustomFilter   string `toml:"custom_filter" json:"custom_filter,omitempty"`
	NetworkTimeout int    `toml:"network_timeout" json:"network_timeout,omitempty"`
	SizeLimit      int    `toml:"size_limit" json:"size_limit,omitempty"`
}

// ConfdConfig holds the remote directory (wazo) connection parameters.
type ConfdConfig struct {
	URL               string `toml:"url" json:"url,omitempty"`
	Token             string `toml:"token" json:"token,omitempty"`
	VerifyCertificate *bool  `toml:"verify_certificate" json:"verify_certificate,omitempty"`
	Timeout           int    `toml:"timeout" json:"timeout,omitempty"`
}

// SourceConfig describes one configured source.
type SourceConfig struct {
	UUID                string            `toml:"uuid" json:"uuid"`
	Name                string            `toml:"name" json:"name" validate:"required,max=512"`
	Backend             string            `toml:"backend" json:"backend" validate:"required"`
	Tenant              string            `toml:"tenant_uuid" json:"tenant_uuid,omitempty"`
	FormatColumns       map[string]string `toml:"format_columns" json:"format_columns,omitempty"`
	SearchedColumns     []string          `toml:"searched_columns" json:"searched_columns,omitempty"`
	FirstMatchedColumns []string          `toml:"first_matched_columns" json:"first_matched_columns,omitempty"`
	UniqueColumns       []string          `toml:"unique_columns" json:"unique_columns,omitempty"`

	// csv
	File      string `toml:"file" json:"file,omitempty"`
	Separator string `toml:"separator" json:"separator,omitempty"`

	// ldap
	LDAP LDAPConfig `toml:"ldap" json:"ldap"`

	// wazo
	Confd ConfdConfig `toml:"confd" json:"confd"`

	// office365
	Endpoint     string `toml:"endpoint" json:"endpoint,omitempty"`
	ClientID     string `toml:"client_id" json:"client_id,omitempty"`
	ClientSecret string `toml:"client_secret" json:"client_secret,omitempty"`
	TokenURL     string `toml:"token_url" json:"token_url,omitempty"`

	// phonebook
	PhonebookID   int64  `toml:"phonebook_id" json:"phonebook_id,omitempty"`
	PhonebookName string `toml:"phonebook_name" json:"phonebook_name,omitempty"`

	// remote backends
	RateLimit float64 `toml:"rate_limit" json:"rate_limit,omitempty" validate:"gte=0"`
	Timeout   int     `toml:"timeout" json:"timeout,omitempty" validate:"gte=0"`
}

// FormattedResult is a contact shaped by a display.
type FormattedResult struct {
	ColumnValues []any             `json:"column_values"`
	Source       string            `json:"source"`
	Backend      string            `json:"backend"`
	Relations    map[string]any    `json:"relations"`
	IsFavorite   bool              `json:"is_favorite"`
	IsPersonal   bool              `json:"is_personal"`
	IsDeletable  bool              `json:"is_deletable"`
	Fields       map[string]string `json:"fields,omitempty"`
}

// LookupResult is the paginated result of a lookup, favorites or personal request.
type LookupResult struct {
	ColumnHeaders  []string          `json:"column_headers"`
	ColumnTypes    []string          `json:"column_types"`
	Results        []FormattedResult `json:"results"`
	Total          int               `json:"total"`
	Offset         int               `json:"offset"`
	NextOffset     *int              `json:"next_offset"`
	PreviousOffset *int              `json:"previous_offset"`
}

// ReverseResult is the single contact matching a reverse lookup.
type ReverseResult struct {
	FormattedResult
	Display string `json:"display"`
	Exten   string `json:"exten"`
}

// PhoneEntry is one name/number line of a phone directory listing.
type PhoneEntry struct {
	Name   string `json:"name"`
	Number string `json:"number"`
}

// PhoneLookupResult is a lookup reduced to phone entries, paginated per vendor page size.
type PhoneLookupResult struct {
	Vendor         string       `json:"vendor"`
	Term           string       `json:"term"`
	Results        []PhoneEntry `json:"results"`
	Total          int          `json:"total"`
	Offset         int          `json:"offset"`
	Limit          int          `json:"limit"`
	NextOffset     *int         `json:"next_offset"`
	PreviousOffset *int         `json:"previous_offset"`
}

// Phonebook is a tenant-owned named collection of contacts.
type Phonebook struct {
	ID          int64   `json:"id"`
	Tenant      string  `json:"tenant_uuid"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

// PhonebookBody is the user-supplied part of a phonebook.
type PhonebookBody struct {
	Name        string  `json:"name" validate:"required,min=1,max=255"`
	Description *string `json:"description"`
}

// PhonebookContact is a contact stored in a phonebook.
type PhonebookContact struct {
	ID          string            `json:"id"`
	PhonebookID int64             `json:"phonebook_id"`
	Fields      map[string]string `json:"fields"`
}

// PersonalContact is a contact owned by a single user.
type PersonalContact struct {
	ID     string            `json:"id"`
	Owner  string            `json:"user_uuid"`
	Fields map[string]string `json:"fields"`
	Hash   string            `json:"-"`
}

// Body returns the contact fields merged with its id.
func (c *PersonalContact) Body() map[string]string {
	body := make(map[string]string, len(c.Fields)+1)
	for k, v := range c.Fields {
		body[k] = v
	}
	body["id"] = c.ID
	return body
}

// Favorite marks a source contact as preferred by its owner.
type Favorite struct {
	Owner     string `json:"user_uuid"`
	Source    string `json:"source"`
	ContactID string `json:"contact_id"`
}

// FavoriteKey identifies a favorite within an owner's set.
type FavoriteKey struct {
	Source    string
	ContactID string
}

// Key returns the set key of f.
func (f Favorite) Key() FavoriteKey {
	return FavoriteKey{Source: f.Source, ContactID: f.ContactID}
}

// Order direction values.
const (
	DirectionAsc  = "asc"
	DirectionDesc = "desc"
)

// ListParams holds filtering, ordering and pagination for listings.
type ListParams struct {
	Name      string
	Search    string
	Order     string
	Direction string
	Limit     *int
	Offset    int
}

// ListResult is the result of a filtered, paginated listing.
type ListResult[T any] struct {
	Total    int `json:"total"`
	Filtered int `json:"filtered"`
	Items    []T `json:"items"`
}

// ImportResult reports a bulk contact import.
type ImportResult[T any] struct {
	Created []T           `json:"created"`
	Failed  []ImportError `json:"failed"`
}

// ImportError is one rejected entry of a bulk import.
type ImportError struct {
	Line    int               `json:"line,omitempty"`
	Contact map[string]string `json:"contact"`
	Message string            `json:"message"`
}

// SourceItem is a configured source as shown in listings.
type SourceItem struct {
	SourceConfig
	Loaded bool `json:"loaded"`
}
