// Package repositories implements SQLite persistence for the directory stores.
//
// Contacts are stored with three columns describing their contents: fields (the JSON field map),
// folded (the same map lowercased without accents, searched with json_each) and hash (a digest
// of the sorted fields enforcing uniqueness per phonebook or per owner).
//
// Key Implementations:
//   - [PhonebookRepository] : tenant-scoped phonebooks, unique by name within a tenant
//   - [PhonebookContactRepository] : phonebook contacts, unique by content within a phonebook
//   - [PersonalRepository] : user-owned contacts, unique by content per owner
//   - [FavoriteRepository] : (source, contact id) pairs per user
//   - [SourceRepository] : sources created at runtime, read by the source registry
//
// Tenant and user rows are created on demand inside the transaction of the write that needs them.
package repositories
