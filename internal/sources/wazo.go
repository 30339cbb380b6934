package sources

import (
	"context"
	"fmt"
	"strconv"

	"github.com/desertthunder/dird/internal/models"
	"github.com/desertthunder/dird/internal/shared"
)

type confdUser struct {
	ID                int     `json:"id"`
	UUID              string  `json:"uuid"`
	LineID            *int    `json:"line_id"`
	AgentID           *int    `json:"agent_id"`
	Firstname         *string `json:"firstname"`
	Lastname          *string `json:"lastname"`
	Exten             *string `json:"exten"`
	MobilePhoneNumber *string `json:"mobile_phone_number"`
	VoicemailNumber   *string `json:"voicemail_number"`
	Email             *string `json:"email"`
}

type confdUserList struct {
	Total int         `json:"total"`
	Items []confdUser `json:"items"`
}

// WazoSource serves the users of a confd configuration API as contacts.
//
// Users are listed with the directory view on every call and matched locally, so searched
// and first-matched columns behave as for other backends. Contacts are identified by user id
// unless unique columns say otherwise.
type WazoSource struct {
	cfg  models.SourceConfig
	http *httpBackend
}

// NewWazoSource builds a wazo source for cfg.Confd.
func NewWazoSource(_ context.Context, cfg models.SourceConfig, deps Dependencies) (Source, error) {
	if cfg.Confd.URL == "" {
		return nil, fmt.Errorf("%w: wazo source %s has no confd url", shared.ErrMissingConfig, cfg.Name)
	}
	if len(cfg.UniqueColumns) == 0 {
		cfg.UniqueColumns = []string{"id"}
	}

	timeout := cfg.Confd.Timeout
	if timeout == 0 {
		timeout = cfg.Timeout
	}
	backend := newHTTPBackend(cfg.Confd.URL, timeout, cfg.RateLimit, deps.HTTPClient)
	if v := cfg.Confd.VerifyCertificate; v != nil && !*v {
		backend.insecure()
	}
	return &WazoSource{cfg: cfg, http: backend}, nil
}

// Name returns the configured source name.
func (s *WazoSource) Name() string { return s.cfg.Name }

// Search returns the users with a searched column containing term.
func (s *WazoSource) Search(ctx context.Context, term string, args Args) ([]models.Contact, error) {
	users, err := s.users(ctx, args)
	if err != nil {
		return nil, err
	}

	var results []models.Contact
	for _, c := range users {
		if containsAny(c.Fields, s.cfg.SearchedColumns, term) {
			results = append(results, c)
		}
	}
	return results, nil
}

// FirstMatch returns the first user with a first-matched column equal to term.
func (s *WazoSource) FirstMatch(ctx context.Context, term string, args Args) (*models.Contact, error) {
	users, err := s.users(ctx, args)
	if err != nil {
		return nil, err
	}

	for _, c := range users {
		if equalsAny(c.Fields, s.cfg.FirstMatchedColumns, term) {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}

// List returns the users whose unique id is in ids.
func (s *WazoSource) List(ctx context.Context, ids []string, args Args) ([]models.Contact, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	users, err := s.users(ctx, args)
	if err != nil {
		return nil, err
	}

	wanted := idSet(ids)
	var results []models.Contact
	for _, c := range users {
		if wanted[c.ID] {
			results = append(results, c)
		}
	}
	return results, nil
}

func (s *WazoSource) users(ctx context.Context, args Args) ([]models.Contact, error) {
	token := s.cfg.Confd.Token
	if token == "" {
		token = args.Token
	}

	var list confdUserList
	req := s.http.client.R().
		SetHeader("X-Auth-Token", token).
		SetQueryParams(map[string]string{"view": "directory", "recurse": "true"})
	if args.TenantUUID != "" {
		req.SetHeader("Wazo-Tenant", args.TenantUUID)
	}
	if err := s.http.get(ctx, req, "/users", &list); err != nil {
		return nil, fmt.Errorf("failed to list confd users: %w", err)
	}

	contacts := make([]models.Contact, 0, len(list.Items))
	for _, u := range list.Items {
		contacts = append(contacts, s.contact(u))
	}
	return contacts, nil
}

func (s *WazoSource) contact(u confdUser) models.Contact {
	fields := map[string]string{
		"id":   strconv.Itoa(u.ID),
		"uuid": u.UUID,
	}
	optional := map[string]*string{
		"firstname":           u.Firstname,
		"lastname":            u.Lastname,
		"exten":               u.Exten,
		"mobile_phone_number": u.MobilePhoneNumber,
		"voicemail_number":    u.VoicemailNumber,
		"email":               u.Email,
	}
	for k, v := range optional {
		if v != nil {
			fields[k] = *v
		}
	}

	c := newContact(s.cfg, uniqueID(s.cfg.UniqueColumns, fields), fields)
	c.Relations = map[string]any{
		"user_id":   u.ID,
		"user_uuid": u.UUID,
	}
	if u.LineID != nil {
		c.Relations["endpoint_id"] = *u.LineID
	}
	if u.AgentID != nil {
		c.Relations["agent_id"] = *u.AgentID
	}
	return c
}
