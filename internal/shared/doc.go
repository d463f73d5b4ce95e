// Package shared holds helpers used across packages that belong to no
// single layer. Its testutil subpackage captures slog output so tests can
// assert on what components log.
package shared
