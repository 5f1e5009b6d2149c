// Package cache
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// AssetCache keeps serialized static responses keyed by canonical file path.
// An entry is valid only while the file exists with the modification time
// recorded at store time; staleness is detected on lookup. Path confinement
// is the caller's job.

package cache
