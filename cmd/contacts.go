package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/desertthunder/dird/internal/models"
	"github.com/desertthunder/dird/internal/shared"
	"github.com/urfave/cli/v3"
)

// parseFields reads repeated key=value flags.
func parseFields(values []string) (map[string]string, error) {
	fields := make(map[string]string, len(values))
	for _, v := range values {
		key, value, ok := strings.Cut(v, "=")
		if !ok {
			return nil, fmt.Errorf("%w: field %q is not key=value", shared.ErrInvalidArgument, v)
		}
		fields[strings.TrimSpace(key)] = value
	}
	return fields, nil
}

func body(fields map[string]string) map[string]any {
	b := make(map[string]any, len(fields))
	for k, v := range fields {
		b[k] = v
	}
	return b
}

func parsePhonebookID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: phonebook id %q", shared.ErrInvalidArgument, s)
	}
	return id, nil
}

// contactRows lays out contacts as an id column followed by the sorted union of their fields.
func contactRows(ids []string, fields []map[string]string) ([]string, [][]string) {
	seen := map[string]bool{}
	var keys []string
	for _, f := range fields {
		for k := range f {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)

	rows := make([][]string, 0, len(ids))
	for i, id := range ids {
		row := []string{id}
		for _, k := range keys {
			row = append(row, fields[i][k])
		}
		rows = append(rows, row)
	}
	return append([]string{"id"}, keys...), rows
}

// pairs renders fields as sorted key=value pairs.
func pairs(fields map[string]string) string {
	out := make([]string, 0, len(fields))
	for k, v := range fields {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}

func (r *Runner) writePersonal(cmd *cli.Command, contacts ...models.PersonalContact) error {
	return r.writeResult(cmd, contacts, func() error {
		ids := make([]string, 0, len(contacts))
		fields := make([]map[string]string, 0, len(contacts))
		for _, c := range contacts {
			ids = append(ids, c.ID)
			fields = append(fields, c.Fields)
		}
		return r.writeTable(contactRows(ids, fields))
	})
}

func (r *Runner) writePhonebookContacts(cmd *cli.Command, v any, contacts ...models.PhonebookContact) error {
	return r.writeResult(cmd, v, func() error {
		ids := make([]string, 0, len(contacts))
		fields := make([]map[string]string, 0, len(contacts))
		for _, c := range contacts {
			ids = append(ids, c.ID)
			fields = append(fields, c.Fields)
		}
		return r.writeTable(contactRows(ids, fields))
	})
}

func (r *Runner) writeImport(cmd *cli.Command, v any, created int, failed []models.ImportError) error {
	return r.writeResult(cmd, v, func() error {
		if err := r.writePlainln("%s", r.palette.OK(fmt.Sprintf("✓ %d contacts imported", created))); err != nil {
			return err
		}
		if len(failed) == 0 {
			return nil
		}
		if err := r.writePlainln("%s", r.palette.Warn(fmt.Sprintf("%d rows failed:", len(failed)))); err != nil {
			return err
		}
		rows := make([][]string, 0, len(failed))
		for _, f := range failed {
			rows = append(rows, []string{strconv.Itoa(f.Line), f.Message, pairs(f.Contact)})
		}
		return r.writeTable([]string{"Line", "Error", "Contact"}, rows)
	})
}

// PersonalList lists the caller's personal contacts.
func (r *Runner) PersonalList(ctx context.Context, cmd *cli.Command) error {
	profile := cmd.String("profile")

	return r.with(ctx, profile != "", func(d *directory) error {
		info, err := d.user(ctx, cmd)
		if err != nil {
			return err
		}

		if profile != "" {
			result, err := d.engine.Personal(ctx, newRequest(info, cmd))
			if err != nil {
				return fmt.Errorf("failed to list personal contacts: %w", err)
			}
			return r.writeLookup(result, cmd.String("format"), "Personal contacts", cmd.Bool("pretty"))
		}

		contacts, err := d.personal.List(ctx, info.UserUUID)
		if err != nil {
			return err
		}
		return r.writePersonal(cmd, contacts...)
	})
}

// PersonalGet shows one personal contact.
func (r *Runner) PersonalGet(ctx context.Context, cmd *cli.Command) error {
	a, err := args(cmd, 1, "ID")
	if err != nil {
		return err
	}

	return r.with(ctx, false, func(d *directory) error {
		info, err := d.user(ctx, cmd)
		if err != nil {
			return err
		}
		contact, err := d.personal.Get(ctx, info.UserUUID, a[0])
		if err != nil {
			return err
		}
		return r.writePersonal(cmd, *contact)
	})
}

// PersonalAdd creates a personal contact from --field flags.
func (r *Runner) PersonalAdd(ctx context.Context, cmd *cli.Command) error {
	fields, err := parseFields(cmd.StringSlice("field"))
	if err != nil {
		return err
	}

	return r.with(ctx, false, func(d *directory) error {
		info, err := d.user(ctx, cmd)
		if err != nil {
			return err
		}
		contact, err := d.personal.Create(ctx, info.UserUUID, body(fields))
		if err != nil {
			return err
		}
		return r.writePersonal(cmd, *contact)
	})
}

// PersonalEdit replaces the fields of a personal contact.
func (r *Runner) PersonalEdit(ctx context.Context, cmd *cli.Command) error {
	a, err := args(cmd, 1, "ID")
	if err != nil {
		return err
	}
	fields, err := parseFields(cmd.StringSlice("field"))
	if err != nil {
		return err
	}

	return r.with(ctx, false, func(d *directory) error {
		info, err := d.user(ctx, cmd)
		if err != nil {
			return err
		}
		contact, err := d.personal.Edit(ctx, info.UserUUID, a[0], body(fields))
		if err != nil {
			return err
		}
		return r.writePersonal(cmd, *contact)
	})
}

// PersonalRemove deletes a personal contact.
func (r *Runner) PersonalRemove(ctx context.Context, cmd *cli.Command) error {
	a, err := args(cmd, 1, "ID")
	if err != nil {
		return err
	}

	return r.with(ctx, false, func(d *directory) error {
		info, err := d.user(ctx, cmd)
		if err != nil {
			return err
		}
		if err := d.personal.Delete(ctx, info.UserUUID, a[0]); err != nil {
			return err
		}
		return r.writePlainln("%s", r.palette.OK("✓ contact "+a[0]+" deleted"))
	})
}

// PersonalPurge deletes every personal contact of the caller.
func (r *Runner) PersonalPurge(ctx context.Context, cmd *cli.Command) error {
	return r.with(ctx, false, func(d *directory) error {
		info, err := d.user(ctx, cmd)
		if err != nil {
			return err
		}
		n, err := d.personal.DeleteAll(ctx, info.UserUUID)
		if err != nil {
			return err
		}
		return r.writePlainln("%s", r.palette.OK(fmt.Sprintf("✓ %d contacts deleted", n)))
	})
}

// PersonalImport imports personal contacts from a CSV file.
func (r *Runner) PersonalImport(ctx context.Context, cmd *cli.Command) error {
	a, err := args(cmd, 1, "FILE")
	if err != nil {
		return err
	}

	return r.with(ctx, false, func(d *directory) error {
		info, err := d.user(ctx, cmd)
		if err != nil {
			return err
		}

		f, err := os.Open(a[0])
		if err != nil {
			return fmt.Errorf("failed to open import file: %w", err)
		}
		defer f.Close()

		result, err := d.personal.ImportCSV(ctx, info.UserUUID, f)
		if err != nil {
			return err
		}
		return r.writeImport(cmd, result, len(result.Created), result.Failed)
	})
}

func (r *Runner) writePhonebooks(cmd *cli.Command, v any, phonebooks ...models.Phonebook) error {
	return r.writeResult(cmd, v, func() error {
		rows := make([][]string, 0, len(phonebooks))
		for _, pb := range phonebooks {
			desc := ""
			if pb.Description != nil {
				desc = *pb.Description
			}
			rows = append(rows, []string{strconv.FormatInt(pb.ID, 10), pb.Name, desc})
		}
		return r.writeTable([]string{"ID", "Name", "Description"}, rows)
	})
}

func phonebookBody(cmd *cli.Command) models.PhonebookBody {
	b := models.PhonebookBody{Name: cmd.String("name")}
	if cmd.IsSet("description") {
		desc := cmd.String("description")
		b.Description = &desc
	}
	return b
}

// PhonebookList lists the phonebooks of the tenant.
func (r *Runner) PhonebookList(ctx context.Context, cmd *cli.Command) error {
	return r.with(ctx, false, func(d *directory) error {
		tenant, err := d.tenant(ctx, cmd)
		if err != nil {
			return err
		}
		result, err := d.phonebooks.List(ctx, tenant, listParams(cmd))
		if err != nil {
			return err
		}
		if err := r.writePhonebooks(cmd, result, result.Items...); err != nil {
			return err
		}
		if cmd.String("format") == formatJSON {
			return nil
		}
		return r.writePlainln("%s", r.palette.Help(fmt.Sprintf("%d of %d phonebooks match", result.Filtered, result.Total)))
	})
}

// PhonebookGet shows one phonebook.
func (r *Runner) PhonebookGet(ctx context.Context, cmd *cli.Command) error {
	a, err := args(cmd, 1, "PHONEBOOK_ID")
	if err != nil {
		return err
	}
	id, err := parsePhonebookID(a[0])
	if err != nil {
		return err
	}

	return r.with(ctx, false, func(d *directory) error {
		tenant, err := d.tenant(ctx, cmd)
		if err != nil {
			return err
		}
		pb, err := d.phonebooks.Get(ctx, tenant, id)
		if err != nil {
			return err
		}
		return r.writePhonebooks(cmd, pb, *pb)
	})
}

// PhonebookCreate creates a phonebook in the tenant.
func (r *Runner) PhonebookCreate(ctx context.Context, cmd *cli.Command) error {
	return r.with(ctx, false, func(d *directory) error {
		tenant, err := d.tenant(ctx, cmd)
		if err != nil {
			return err
		}
		pb, err := d.phonebooks.Create(ctx, tenant, phonebookBody(cmd))
		if err != nil {
			return err
		}
		return r.writePhonebooks(cmd, pb, *pb)
	})
}

// PhonebookEdit replaces the name and description of a phonebook.
func (r *Runner) PhonebookEdit(ctx context.Context, cmd *cli.Command) error {
	a, err := args(cmd, 1, "PHONEBOOK_ID")
	if err != nil {
		return err
	}
	id, err := parsePhonebookID(a[0])
	if err != nil {
		return err
	}

	return r.with(ctx, false, func(d *directory) error {
		tenant, err := d.tenant(ctx, cmd)
		if err != nil {
			return err
		}
		pb, err := d.phonebooks.Edit(ctx, tenant, id, phonebookBody(cmd))
		if err != nil {
			return err
		}
		return r.writePhonebooks(cmd, pb, *pb)
	})
}

// PhonebookRemove deletes a phonebook with its contacts.
func (r *Runner) PhonebookRemove(ctx context.Context, cmd *cli.Command) error {
	a, err := args(cmd, 1, "PHONEBOOK_ID")
	if err != nil {
		return err
	}
	id, err := parsePhonebookID(a[0])
	if err != nil {
		return err
	}

	return r.with(ctx, false, func(d *directory) error {
		tenant, err := d.tenant(ctx, cmd)
		if err != nil {
			return err
		}
		if err := d.phonebooks.Delete(ctx, tenant, id); err != nil {
			return err
		}
		return r.writePlainln("%s", r.palette.OK(fmt.Sprintf("✓ phonebook %d deleted", id)))
	})
}

// phonebookContact resolves the tenant and the phonebook id argument before running fn.
func (r *Runner) phonebookContact(ctx context.Context, cmd *cli.Command, n int, usage string, fn func(d *directory, tenant string, id int64, a []string) error) error {
	a, err := args(cmd, n, usage)
	if err != nil {
		return err
	}
	id, err := parsePhonebookID(a[0])
	if err != nil {
		return err
	}

	return r.with(ctx, false, func(d *directory) error {
		tenant, err := d.tenant(ctx, cmd)
		if err != nil {
			return err
		}
		return fn(d, tenant, id, a)
	})
}

// PhonebookContactsList lists the contacts of a phonebook.
func (r *Runner) PhonebookContactsList(ctx context.Context, cmd *cli.Command) error {
	return r.phonebookContact(ctx, cmd, 1, "PHONEBOOK_ID", func(d *directory, tenant string, id int64, _ []string) error {
		result, err := d.phonebooks.ListContacts(ctx, tenant, id, listParams(cmd))
		if err != nil {
			return err
		}
		if err := r.writePhonebookContacts(cmd, result, result.Items...); err != nil {
			return err
		}
		if cmd.String("format") == formatJSON {
			return nil
		}
		return r.writePlainln("%s", r.palette.Help(fmt.Sprintf("%d of %d contacts match", result.Filtered, result.Total)))
	})
}

// PhonebookContactsGet shows one phonebook contact.
func (r *Runner) PhonebookContactsGet(ctx context.Context, cmd *cli.Command) error {
	return r.phonebookContact(ctx, cmd, 2, "PHONEBOOK_ID CONTACT_ID", func(d *directory, tenant string, id int64, a []string) error {
		contact, err := d.phonebooks.GetContact(ctx, tenant, id, a[1])
		if err != nil {
			return err
		}
		return r.writePhonebookContacts(cmd, contact, *contact)
	})
}

// PhonebookContactsAdd creates a phonebook contact from --field flags.
func (r *Runner) PhonebookContactsAdd(ctx context.Context, cmd *cli.Command) error {
	fields, err := parseFields(cmd.StringSlice("field"))
	if err != nil {
		return err
	}
	return r.phonebookContact(ctx, cmd, 1, "PHONEBOOK_ID", func(d *directory, tenant string, id int64, _ []string) error {
		contact, err := d.phonebooks.CreateContact(ctx, tenant, id, fields)
		if err != nil {
			return err
		}
		return r.writePhonebookContacts(cmd, contact, *contact)
	})
}

// PhonebookContactsEdit replaces the fields of a phonebook contact.
func (r *Runner) PhonebookContactsEdit(ctx context.Context, cmd *cli.Command) error {
	fields, err := parseFields(cmd.StringSlice("field"))
	if err != nil {
		return err
	}
	return r.phonebookContact(ctx, cmd, 2, "PHONEBOOK_ID CONTACT_ID", func(d *directory, tenant string, id int64, a []string) error {
		contact, err := d.phonebooks.EditContact(ctx, tenant, id, a[1], fields)
		if err != nil {
			return err
		}
		return r.writePhonebookContacts(cmd, contact, *contact)
	})
}

// PhonebookContactsRemove deletes a phonebook contact.
func (r *Runner) PhonebookContactsRemove(ctx context.Context, cmd *cli.Command) error {
	return r.phonebookContact(ctx, cmd, 2, "PHONEBOOK_ID CONTACT_ID", func(d *directory, tenant string, id int64, a []string) error {
		if err := d.phonebooks.DeleteContact(ctx, tenant, id, a[1]); err != nil {
			return err
		}
		return r.writePlainln("%s", r.palette.OK("✓ contact "+a[1]+" deleted"))
	})
}

// PhonebookContactsImport imports phonebook contacts from a CSV file.
func (r *Runner) PhonebookContactsImport(ctx context.Context, cmd *cli.Command) error {
	return r.phonebookContact(ctx, cmd, 2, "PHONEBOOK_ID FILE", func(d *directory, tenant string, id int64, a []string) error {
		f, err := os.Open(a[1])
		if err != nil {
			return fmt.Errorf("failed to open import file: %w", err)
		}
		defer f.Close()

		result, err := d.phonebooks.ImportCSV(ctx, tenant, id, f)
		if err != nil {
			return err
		}
		return r.writeImport(cmd, result, len(result.Created), result.Failed)
	})
}
