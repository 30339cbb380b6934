// Package services implements the directory operations that sit on top of storage: personal contacts,
// phonebooks, favorites, profiles and runtime sources.
//
// # Validation
//
// Inputs are validated before they reach a repository. Violations are collected and returned as one
// [shared.ValidationError] wrapping the sentinel of the resource:
//   - [shared.ErrInvalidPersonalContact] : personal contact keys or values
//   - [shared.ErrInvalidPhonebook] : phonebook body (struct tags, go-playground/validator)
//   - [shared.ErrInvalidContact] : phonebook contact body
//   - [shared.ErrInvalidSource] : source configuration
//   - [shared.ErrInvalidTenant], [shared.ErrInvalidOrder], [shared.ErrInvalidDirection] : request parameters
//
// # Listings
//
// Listings return a [models.ListResult] with the unfiltered total, the filtered count and the requested
// page of items.
//
// # Side Effects
//
// [FavoriteService] publishes favorite_added and favorite_deleted events once the store accepted the
// change. A failed publish is logged, never returned. [SourceService] reloads the source registry after
// every mutation so lookups see the change on their next request.
package services
