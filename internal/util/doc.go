// Package util provides common utility functions used across the oauth-core
// library.
//
// These helpers cover string truncation for safe logging and hostname
// classification used by redirect URI validation. They exist so multiple
// packages share one behavior instead of re-implementing it.
package util
