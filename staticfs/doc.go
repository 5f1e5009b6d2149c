// Package staticfs
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// FileServer maps request paths onto one or more mounted directories, keeps
// every resolved path inside the permitted roots and serves file bodies
// through the asset cache.

package staticfs
