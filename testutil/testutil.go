/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package testutil contains helpers for tests that talk to the server over raw TCP.
package testutil

type tHelper interface {
	Helper()
}
