// Package errors provides the structured error type shared by relay packages.
//
// Stage failures carry one of two stage-fatal codes: CONTRACT_VIOLATION when a
// stage or its unit of work does not match the declared shape, and
// COLLABORATOR_FAILURE when the unit of work itself fails. A closed mailbox is
// never reported through this package; it is an ordinary result of Get/Put.
package errors
