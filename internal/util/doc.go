// Package util provides small helpers shared by the storage, server and handler
// packages.
//
// Key utilities:
//   - SafeTruncate: truncates references and identifiers for logging
//   - ValidateRedirectURI: checks a redirect URI is acceptable for registration
package util
