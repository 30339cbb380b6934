package sources

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/dird/internal/models"
	"github.com/desertthunder/dird/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultGraphEndpoint = "https://graph.microsoft.com/v1.0/me"
	graphScope           = "https://graph.microsoft.com/.default"
	// MicrosoftTokenKey is the [Args.External] key of a caller's delegated Microsoft token.
	MicrosoftTokenKey = "microsoft"
	maxGraphPages     = 20
)

type graphEmail struct {
	Address string `json:"address"`
}

type graphContact struct {
	ID             string       `json:"id"`
	GivenName      string       `json:"givenName"`
	Surname        string       `json:"surname"`
	DisplayName    string       `json:"displayName"`
	MobilePhone    string       `json:"mobilePhone"`
	BusinessPhones []string     `json:"businessPhones"`
	HomePhones     []string     `json:"homePhones"`
	EmailAddresses []graphEmail `json:"emailAddresses"`
}

type graphContactPage struct {
	Value    []graphContact `json:"value"`
	NextLink string         `json:"@odata.nextLink"`
}

// Office365Source serves the contacts of a Microsoft Graph mailbox.
//
// A caller's delegated token in [Args.External] takes precedence; otherwise the source
// authenticates as an application with client credentials, when configured.
type Office365Source struct {
	cfg  models.SourceConfig
	http *httpBackend
	app  oauth2.TokenSource
}

// NewOffice365Source builds an office365 source. The endpoint defaults to the signed-in user's mailbox.
func NewOffice365Source(_ context.Context, cfg models.SourceConfig, deps Dependencies) (Source, error) {
	endpoint := strings.TrimSuffix(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = defaultGraphEndpoint
	}
	if len(cfg.UniqueColumns) == 0 {
		cfg.UniqueColumns = []string{"id"}
	}

	s := &Office365Source{
		cfg:  cfg,
		http: newHTTPBackend(endpoint, cfg.Timeout, cfg.RateLimit, deps.HTTPClient),
	}

	if cfg.ClientID != "" || cfg.ClientSecret != "" {
		if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.TokenURL == "" {
			return nil, fmt.Errorf("%w: office365 source %s needs client_id, client_secret and token_url", shared.ErrMissingConfig, cfg.Name)
		}
		app := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       []string{graphScope},
		}
		tokenCtx := context.Background()
		if deps.HTTPClient != nil {
			tokenCtx = context.WithValue(tokenCtx, oauth2.HTTPClient, deps.HTTPClient)
		}
		s.app = app.TokenSource(tokenCtx)
	}
	return s, nil
}

// Name returns the configured source name.
func (s *Office365Source) Name() string { return s.cfg.Name }

// Search returns the contacts with a searched column containing term.
func (s *Office365Source) Search(ctx context.Context, term string, args Args) ([]models.Contact, error) {
	contacts, err := s.contacts(ctx, args)
	if err != nil {
		return nil, err
	}

	var results []models.Contact
	for _, c := range contacts {
		if containsAny(c.Fields, s.cfg.SearchedColumns, term) {
			results = append(results, c)
		}
	}
	return results, nil
}

// FirstMatch returns the first contact with a first-matched column equal to term.
func (s *Office365Source) FirstMatch(ctx context.Context, term string, args Args) (*models.Contact, error) {
	contacts, err := s.contacts(ctx, args)
	if err != nil {
		return nil, err
	}

	for _, c := range contacts {
		if equalsAny(c.Fields, s.cfg.FirstMatchedColumns, term) {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}

// List returns the contacts whose unique id is in ids.
func (s *Office365Source) List(ctx context.Context, ids []string, args Args) ([]models.Contact, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	contacts, err := s.contacts(ctx, args)
	if err != nil {
		return nil, err
	}

	wanted := idSet(ids)
	var results []models.Contact
	for _, c := range contacts {
		if wanted[c.ID] {
			results = append(results, c)
		}
	}
	return results, nil
}

func (s *Office365Source) tokenSource(args Args) (oauth2.TokenSource, error) {
	if tok := args.External[MicrosoftTokenKey]; tok != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok, TokenType: "Bearer"}), nil
	}
	if s.app != nil {
		return s.app, nil
	}
	return nil, fmt.Errorf("%w: no microsoft token for %s", shared.ErrUnauthorized, s.cfg.Name)
}

// contacts fetches every contact of the mailbox, following pagination links.
func (s *Office365Source) contacts(ctx context.Context, args Args) ([]models.Contact, error) {
	ts, err := s.tokenSource(args)
	if err != nil {
		return nil, err
	}
	token, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to get microsoft token: %w", err)
	}

	var contacts []models.Contact
	url := "/contacts"
	for page := 0; url != "" && page < maxGraphPages; page++ {
		var result graphContactPage
		req := s.http.client.R().SetAuthToken(token.AccessToken)
		if err := s.http.get(ctx, req, url, &result); err != nil {
			return nil, fmt.Errorf("failed to list office365 contacts: %w", err)
		}

		for _, gc := range result.Value {
			contacts = append(contacts, s.contact(gc))
		}
		url = result.NextLink
	}
	return contacts, nil
}

func (s *Office365Source) contact(gc graphContact) models.Contact {
	fields := map[string]string{"id": gc.ID}
	set := func(key, value string) {
		if value != "" {
			fields[key] = value
		}
	}
	set("firstname", gc.GivenName)
	set("lastname", gc.Surname)
	set("display_name", gc.DisplayName)
	set("mobile", gc.MobilePhone)
	if len(gc.BusinessPhones) > 0 {
		set("number", gc.BusinessPhones[0])
	} else if len(gc.HomePhones) > 0 {
		set("number", gc.HomePhones[0])
	}
	if len(gc.EmailAddresses) > 0 {
		set("email", gc.EmailAddresses[0].Address)
	}
	return newContact(s.cfg, uniqueID(s.cfg.UniqueColumns, fields), fields)
}
