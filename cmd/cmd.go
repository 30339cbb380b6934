// submodule cmd contains command definitions
package main

import (
	"strings"

	"github.com/desertthunder/dird/internal/engine"
	"github.com/desertthunder/dird/internal/formatter"
	"github.com/desertthunder/dird/internal/models"
	"github.com/urfave/cli/v3"
)

// globalFlags are read by every command: the config file and the caller identity.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   "config.toml",
			Sources: cli.EnvVars("DIRD_CONFIG"),
		},
		&cli.StringFlag{
			Name:    "token",
			Aliases: []string{"t"},
			Usage:   "Token identifying the caller",
			Sources: cli.EnvVars("DIRD_TOKEN"),
		},
		&cli.StringFlag{
			Name:  "user",
			Usage: "User UUID, when no token is given",
		},
		&cli.StringFlag{
			Name:  "tenant",
			Usage: "Tenant UUID, when no token is given",
		},
	}
}

func formatFlags(formats ...string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "Output format: " + strings.Join(formats, ", "),
			Value:   formats[0],
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print JSON output",
		},
	}
}

func lookupFormatFlags() []cli.Flag {
	return formatFlags(formatTable, formatJSON, formatter.FormatCSV, formatter.FormatMarkdown, formatter.FormatText)
}

func pageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "limit",
			Usage: "Maximum number of results to return",
		},
		&cli.IntFlag{
			Name:  "offset",
			Usage: "Number of results to skip",
		},
	}
}

func listFlags() []cli.Flag {
	return append([]cli.Flag{
		&cli.StringFlag{Name: "search", Aliases: []string{"s"}, Usage: "Only show entries matching this term"},
		&cli.StringFlag{Name: "name", Usage: "Only show the entry with this exact name"},
		&cli.StringFlag{Name: "order", Usage: "Column to order by"},
		&cli.StringFlag{Name: "direction", Usage: "Order direction: asc or desc"},
	}, pageFlags()...)
}

func profileFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "profile",
		Aliases: []string{"p"},
		Usage:   "Profile to query",
		Value:   "default",
	}
}

func fieldFlag() cli.Flag {
	return &cli.StringSliceFlag{
		Name:    "field",
		Aliases: []string{"F"},
		Usage:   "Contact field as key=value, repeatable",
	}
}

func limit(cmd *cli.Command) *int {
	if !cmd.IsSet("limit") {
		return nil
	}
	l := int(cmd.Int("limit"))
	return &l
}

func listParams(cmd *cli.Command) models.ListParams {
	return models.ListParams{
		Name:      cmd.String("name"),
		Search:    cmd.String("search"),
		Order:     cmd.String("order"),
		Direction: cmd.String("direction"),
		Limit:     limit(cmd),
		Offset:    int(cmd.Int("offset")),
	}
}

func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create the config file if missing, initialize the database and run migrations",
		Action: r.Setup,
	}
}

func lookupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "lookup",
		Aliases:   []string{"l"},
		Usage:     "Search every lookup source of a profile",
		ArgsUsage: "TERM",
		Flags: append(append([]cli.Flag{
			profileFlag(),
			&cli.BoolFlag{Name: "progress", Usage: "Print progress while sources answer"},
		}, pageFlags()...), lookupFormatFlags()...),
		Action: r.Lookup,
	}
}

func reverseCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "reverse",
		Aliases:   []string{"r"},
		Usage:     "Find the contact owning one or more numbers",
		ArgsUsage: "EXTEN [EXTEN...]",
		Flags:     append([]cli.Flag{profileFlag()}, formatFlags(formatTable, formatJSON)...),
		Action:    r.Reverse,
	}
}

func phoneCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "phone",
		Usage:     "Search a profile as a desk phone directory: " + strings.Join(engine.Vendors(), ", "),
		ArgsUsage: "TERM",
		Flags: append(append([]cli.Flag{
			profileFlag(),
			&cli.StringFlag{Name: "vendor", Usage: "Phone vendor", Required: true},
		}, pageFlags()...), formatFlags(formatTable, formatJSON)...),
		Action: r.Phone,
	}
}

func favoritesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "favorites",
		Aliases: []string{"fav"},
		Usage:   "Favorite contacts of the caller",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List favorite contacts through a profile",
				Flags:  append(append([]cli.Flag{profileFlag()}, pageFlags()...), lookupFormatFlags()...),
				Action: r.FavoritesList,
			},
			{
				Name:      "add",
				Usage:     "Mark a contact as favorite",
				ArgsUsage: "SOURCE CONTACT_ID",
				Action:    r.FavoritesAdd,
			},
			{
				Name:      "remove",
				Aliases:   []string{"rm"},
				Usage:     "Unmark a favorite contact",
				ArgsUsage: "SOURCE CONTACT_ID",
				Action:    r.FavoritesRemove,
			},
		},
	}
}

func personalCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "personal",
		Usage: "Personal contacts of the caller",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List personal contacts, formatted through a profile when --profile is set",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "profile", Aliases: []string{"p"}, Usage: "Profile whose display formats the contacts"},
				}, lookupFormatFlags()...),
				Action: r.PersonalList,
			},
			{
				Name:      "get",
				Usage:     "Show a personal contact",
				ArgsUsage: "ID",
				Flags:     formatFlags(formatTable, formatJSON),
				Action:    r.PersonalGet,
			},
			{
				Name:   "add",
				Usage:  "Create a personal contact",
				Flags:  append([]cli.Flag{fieldFlag()}, formatFlags(formatTable, formatJSON)...),
				Action: r.PersonalAdd,
			},
			{
				Name:      "edit",
				Usage:     "Replace the fields of a personal contact",
				ArgsUsage: "ID",
				Flags:     append([]cli.Flag{fieldFlag()}, formatFlags(formatTable, formatJSON)...),
				Action:    r.PersonalEdit,
			},
			{
				Name:      "remove",
				Aliases:   []string{"rm"},
				Usage:     "Delete a personal contact",
				ArgsUsage: "ID",
				Action:    r.PersonalRemove,
			},
			{
				Name:   "purge",
				Usage:  "Delete every personal contact of the caller",
				Action: r.PersonalPurge,
			},
			{
				Name:      "import",
				Usage:     "Import personal contacts from a CSV file with a header row",
				ArgsUsage: "FILE",
				Flags:     formatFlags(formatTable, formatJSON),
				Action:    r.PersonalImport,
			},
		},
	}
}

func phonebookCommand(r *Runner) *cli.Command {
	bodyFlags := func() []cli.Flag {
		return []cli.Flag{
			&cli.StringFlag{Name: "name", Usage: "Phonebook name"},
			&cli.StringFlag{Name: "description", Usage: "Phonebook description"},
		}
	}

	return &cli.Command{
		Name:    "phonebook",
		Aliases: []string{"pb"},
		Usage:   "Tenant phonebooks",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List the phonebooks of the tenant",
				Flags:  append(listFlags(), formatFlags(formatTable, formatJSON)...),
				Action: r.PhonebookList,
			},
			{
				Name:      "get",
				Usage:     "Show a phonebook",
				ArgsUsage: "PHONEBOOK_ID",
				Flags:     formatFlags(formatTable, formatJSON),
				Action:    r.PhonebookGet,
			},
			{
				Name:   "create",
				Usage:  "Create a phonebook",
				Flags:  append(bodyFlags(), formatFlags(formatTable, formatJSON)...),
				Action: r.PhonebookCreate,
			},
			{
				Name:      "edit",
				Usage:     "Replace the name and description of a phonebook",
				ArgsUsage: "PHONEBOOK_ID",
				Flags:     append(bodyFlags(), formatFlags(formatTable, formatJSON)...),
				Action:    r.PhonebookEdit,
			},
			{
				Name:      "remove",
				Aliases:   []string{"rm"},
				Usage:     "Delete a phonebook and its contacts",
				ArgsUsage: "PHONEBOOK_ID",
				Action:    r.PhonebookRemove,
			},
			phonebookContactsCommand(r),
		},
	}
}

func phonebookContactsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "contacts",
		Usage: "Contacts of a phonebook",
		Commands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "List the contacts of a phonebook",
				ArgsUsage: "PHONEBOOK_ID",
				Flags:     append(listFlags(), formatFlags(formatTable, formatJSON)...),
				Action:    r.PhonebookContactsList,
			},
			{
				Name:      "get",
				Usage:     "Show a phonebook contact",
				ArgsUsage: "PHONEBOOK_ID CONTACT_ID",
				Flags:     formatFlags(formatTable, formatJSON),
				Action:    r.PhonebookContactsGet,
			},
			{
				Name:      "add",
				Usage:     "Create a phonebook contact",
				ArgsUsage: "PHONEBOOK_ID",
				Flags:     append([]cli.Flag{fieldFlag()}, formatFlags(formatTable, formatJSON)...),
				Action:    r.PhonebookContactsAdd,
			},
			{
				Name:      "edit",
				Usage:     "Replace the fields of a phonebook contact",
				ArgsUsage: "PHONEBOOK_ID CONTACT_ID",
				Flags:     append([]cli.Flag{fieldFlag()}, formatFlags(formatTable, formatJSON)...),
				Action:    r.PhonebookContactsEdit,
			},
			{
				Name:      "remove",
				Aliases:   []string{"rm"},
				Usage:     "Delete a phonebook contact",
				ArgsUsage: "PHONEBOOK_ID CONTACT_ID",
				Action:    r.PhonebookContactsRemove,
			},
			{
				Name:      "import",
				Usage:     "Import phonebook contacts from a CSV file with a header row",
				ArgsUsage: "PHONEBOOK_ID FILE",
				Flags:     formatFlags(formatTable, formatJSON),
				Action:    r.PhonebookContactsImport,
			},
		},
	}
}

func sourcesCommand(r *Runner) *cli.Command {
	bodyFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:     "body",
			Aliases:  []string{"b"},
			Usage:    "Source configuration as JSON, or @FILE to read it from a file",
			Required: true,
		}
	}

	return &cli.Command{
		Name:    "sources",
		Aliases: []string{"src"},
		Usage:   "Sources stored in the database",
		Commands: []*cli.Command{
			{
				Name:   "backends",
				Usage:  "List the available backends",
				Action: r.SourcesBackends,
			},
			{
				Name:  "list",
				Usage: "List stored sources",
				Flags: append(append([]cli.Flag{
					&cli.StringFlag{Name: "backend", Usage: "Only list sources of this backend"},
				}, listFlags()...), formatFlags(formatTable, formatJSON)...),
				Action: r.SourcesList,
			},
			{
				Name:      "get",
				Usage:     "Show a stored source",
				ArgsUsage: "BACKEND UUID",
				Flags:     formatFlags(formatJSON, formatTable),
				Action:    r.SourcesGet,
			},
			{
				Name:      "create",
				Usage:     "Store a new source and reload",
				ArgsUsage: "BACKEND",
				Flags:     append([]cli.Flag{bodyFlag()}, formatFlags(formatJSON, formatTable)...),
				Action:    r.SourcesCreate,
			},
			{
				Name:      "edit",
				Usage:     "Replace a stored source and reload",
				ArgsUsage: "BACKEND UUID",
				Flags:     append([]cli.Flag{bodyFlag()}, formatFlags(formatJSON, formatTable)...),
				Action:    r.SourcesEdit,
			},
			{
				Name:      "remove",
				Aliases:   []string{"rm"},
				Usage:     "Delete a stored source and reload",
				ArgsUsage: "BACKEND UUID",
				Action:    r.SourcesRemove,
			},
		},
	}
}

func profilesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "profiles",
		Usage: "Configured profiles",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List the profiles visible to the tenant",
				Flags:  formatFlags(formatTable, formatJSON),
				Action: r.ProfilesList,
			},
			{
				Name:      "sources",
				Usage:     "List the sources a profile uses",
				ArgsUsage: "PROFILE",
				Flags:     append(listFlags(), formatFlags(formatTable, formatJSON)...),
				Action:    r.ProfilesSources,
			},
		},
	}
}

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve /status and /metrics, reloading sources when the config file changes",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "Listen address, overriding [server] host and port"},
			&cli.BoolFlag{Name: "no-watch", Usage: "Do not reload on config file changes"},
			&cli.DurationFlag{Name: "reload-interval", Usage: "Also reload sources on this interval, 0 to disable"},
		},
		Action: r.Serve,
	}
}
