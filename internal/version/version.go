// Package version stamps state snapshots with the engine's schema version,
// so StateStore.Load can refuse a snapshot written by an incompatible
// future engine revision before trusting its Merkle node table.
package version

import (
	"fmt"

	"github.com/blang/semver/v4"
)

// Schema is the current snapshot schema version. Bump the minor version
// for additive, backward-compatible snapshot fields; bump major for
// anything that changes the meaning of an existing field.
var Schema = semver.MustParse("1.0.0")

// CheckCompatible returns an error if snapshotVersion's major component
// differs from the running engine's, meaning the snapshot cannot be
// trusted to mean what this engine thinks it means.
func CheckCompatible(snapshotVersion string) error {
	v, err := semver.Parse(snapshotVersion)
	if err != nil {
		return fmt.Errorf("version: invalid snapshot schema version %q: %w", snapshotVersion, err)
	}
	if v.Major != Schema.Major {
		return fmt.Errorf("version: snapshot schema v%s incompatible with engine schema v%s", v, Schema)
	}
	return nil
}
