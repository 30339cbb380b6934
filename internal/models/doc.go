// Package models defines the domain types of the contact directory.
//
// The package contains three categories of types:
//
// 1. Configuration: how sources are shaped and grouped
//   - [SourceConfig] : one configured backend instance
//   - [Display] / [Column] : ordered column templates
//   - [Profile] : tenant-scoped sources per service plus a display
//
// 2. Results: what lookups produce
//   - [Contact] : raw record produced by a source
//   - [FormattedResult] / [LookupResult] / [ReverseResult] : display-shaped output
//   - [PhoneLookupResult] : name/number entries for phone directories
//
// 3. Persistent entities: stored by the repositories package
//   - [Phonebook] / [PhonebookContact]
//   - [PersonalContact]
//   - [Favorite]
package models
