package sources

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/desertthunder/dird/internal/models"
	"github.com/desertthunder/dird/internal/shared"
	"github.com/go-ldap/ldap/v3"
)

const defaultLDAPTimeout = 3 * time.Second

// ldapConn is the subset of [ldap.Conn] the source uses.
type ldapConn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Close() error
}

type ldapDialFunc func(cfg models.LDAPConfig) (ldapConn, error)

type conn struct{ *ldap.Conn }

func (c conn) Close() error {
	c.Conn.Close()
	return nil
}

func dialLDAP(cfg models.LDAPConfig) (ldapConn, error) {
	timeout := defaultLDAPTimeout
	if cfg.NetworkTimeout > 0 {
		timeout = time.Duration(cfg.NetworkTimeout) * time.Second
	}

	c, err := ldap.DialURL(cfg.URI, ldap.DialWithDialer(&net.Dialer{Timeout: timeout}))
	if err != nil {
		return nil, err
	}
	c.SetTimeout(timeout)
	return conn{c}, nil
}

// LDAPSource searches an LDAP directory. Every call opens and binds its own connection.
type LDAPSource struct {
	cfg  models.SourceConfig
	dial ldapDialFunc
}

// NewLDAPSource builds an LDAP source after checking the directory accepts a bind.
func NewLDAPSource(_ context.Context, cfg models.SourceConfig, _ Dependencies) (Source, error) {
	return newLDAPSource(cfg, dialLDAP)
}

func newLDAPSource(cfg models.SourceConfig, dial ldapDialFunc) (*LDAPSource, error) {
	if cfg.LDAP.URI == "" || cfg.LDAP.BaseDN == "" {
		return nil, fmt.Errorf("%w: ldap source %s needs uri and base_dn", shared.ErrMissingConfig, cfg.Name)
	}

	s := &LDAPSource{cfg: cfg, dial: dial}
	c, err := s.connect()
	if err != nil {
		return nil, err
	}
	c.Close()
	return s, nil
}

func (s *LDAPSource) connect() (ldapConn, error) {
	c, err := s.dial(s.cfg.LDAP)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", s.cfg.LDAP.URI, err)
	}

	if s.cfg.LDAP.Username != "" {
		if err := c.Bind(s.cfg.LDAP.Username, s.cfg.LDAP.Password); err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to bind to %s: %w", s.cfg.LDAP.URI, err)
		}
	}
	return c, nil
}

// Name returns the configured source name.
func (s *LDAPSource) Name() string { return s.cfg.Name }

// Search returns the entries with a searched attribute containing term.
func (s *LDAPSource) Search(_ context.Context, term string, _ Args) ([]models.Contact, error) {
	filter := s.searchFilter(term)
	if filter == "" {
		return nil, nil
	}
	return s.search(filter, 0)
}

// FirstMatch returns the first entry with a first-matched attribute equal to term.
func (s *LDAPSource) FirstMatch(_ context.Context, term string, _ Args) (*models.Contact, error) {
	filter := anyOf(s.cfg.FirstMatchedColumns, ldap.EscapeFilter(term))
	if filter == "" {
		return nil, nil
	}

	contacts, err := s.search(filter, 1)
	if err != nil || len(contacts) == 0 {
		return nil, err
	}
	return &contacts[0], nil
}

// List returns the entries whose unique attributes match one of ids.
func (s *LDAPSource) List(_ context.Context, ids []string, _ Args) ([]models.Contact, error) {
	filter := s.listFilter(ids)
	if filter == "" {
		return nil, nil
	}
	return s.search(filter, 0)
}

// searchFilter builds (|(col=*term*)...), AND-ed with the custom filter when one is configured.
func (s *LDAPSource) searchFilter(term string) string {
	escaped := ldap.EscapeFilter(term)
	filter := anyOf(s.cfg.SearchedColumns, "*"+escaped+"*")

	custom := strings.ReplaceAll(s.cfg.LDAP.CustomFilter, "{term}", escaped)
	switch {
	case custom == "":
		return filter
	case filter == "":
		return custom
	default:
		return "(&" + custom + filter + ")"
	}
}

func (s *LDAPSource) listFilter(ids []string) string {
	columns := s.cfg.UniqueColumns
	if len(columns) == 0 || len(ids) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("(|")
	for _, id := range ids {
		values, ok := splitUniqueID(columns, id)
		if !ok {
			continue
		}
		if len(columns) == 1 {
			fmt.Fprintf(&b, "(%s=%s)", columns[0], ldap.EscapeFilter(values[0]))
			continue
		}
		b.WriteString("(&")
		for i, col := range columns {
			fmt.Fprintf(&b, "(%s=%s)", col, ldap.EscapeFilter(values[i]))
		}
		b.WriteString(")")
	}
	b.WriteString(")")

	if b.Len() == len("(|)") {
		return ""
	}
	return b.String()
}

// anyOf builds (|(col=value)...); value must already be escaped.
func anyOf(columns []string, value string) string {
	if len(columns) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("(|")
	for _, col := range columns {
		fmt.Fprintf(&b, "(%s=%s)", col, value)
	}
	b.WriteString(")")
	return b.String()
}

func (s *LDAPSource) search(filter string, limit int) ([]models.Contact, error) {
	c, err := s.connect()
	if err != nil {
		return nil, err
	}
	defer c.Close()

	if limit == 0 {
		limit = s.cfg.LDAP.SizeLimit
	}
	attributes := append([]string{"*"}, s.cfg.UniqueColumns...)
	req := ldap.NewSearchRequest(
		s.cfg.LDAP.BaseDN, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases,
		limit, 0, false, filter, attributes, nil,
	)

	result, err := c.Search(req)
	if err != nil && !(result != nil && ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded)) {
		return nil, fmt.Errorf("failed to search %s: %w", s.cfg.LDAP.URI, err)
	}

	contacts := make([]models.Contact, 0, len(result.Entries))
	for _, entry := range result.Entries {
		fields := make(map[string]string, len(entry.Attributes))
		for _, attr := range entry.Attributes {
			if len(attr.Values) > 0 {
				fields[attr.Name] = attr.Values[0]
			}
		}
		contacts = append(contacts, newContact(s.cfg, uniqueID(s.cfg.UniqueColumns, fields), fields))
	}
	return contacts, nil
}
