// Package iox holds small io cleanup helpers.
package iox

import "io"

// DiscardClose closes c, dropping the error. Meant for defers where a
// failed close has no recovery path:
//
//	defer iox.DiscardClose(resp.Body)
func DiscardClose(c io.Closer) { _ = c.Close() }
