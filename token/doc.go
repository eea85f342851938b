// Package token encodes and decodes compact access tokens and classifies
// verification failures into expired versus malformed, leaving revocation
// checks to the caller.
package token
