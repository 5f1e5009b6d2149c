// Package handlers
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Request handlers that sit on top of the engine: the urlencoded form echo
// and the default site routing table.

package handlers
