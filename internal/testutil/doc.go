// Package testutil provides fixtures, a mock clock and assertion helpers shared by
// the package tests of this module.
package testutil
