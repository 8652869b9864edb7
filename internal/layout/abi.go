package layout

import (
	"fmt"

	"golang.org/x/mod/semver"
)

// CheckABI verifies that code generated for the runtime ABI version
// moduleABI can run against this layout.
//
// The check follows semantic versioning: the major versions must match and
// the module may not require a newer minor or patch level than the layout
// provides. An empty moduleABI means the module makes no claim and is
// accepted.
//
// Returns:
//   - nil if compatible
//   - error naming both versions otherwise
func (l *Layout) CheckABI(moduleABI string) error {
	if moduleABI == "" {
		return nil
	}
	if !semver.IsValid(moduleABI) {
		return fmt.Errorf("invalid ABI version %q in module (want vMAJOR.MINOR.PATCH)", moduleABI)
	}
	have := l.ABI
	if have == "" {
		have = CurrentABI
	}
	if !semver.IsValid(have) {
		return fmt.Errorf("invalid layout ABI version %q", have)
	}
	if semver.Major(moduleABI) != semver.Major(have) {
		return fmt.Errorf("module ABI %s is incompatible with runtime ABI %s (major version differs)", moduleABI, have)
	}
	if semver.Compare(moduleABI, have) > 0 {
		return fmt.Errorf("module requires runtime ABI %s, layout provides %s", moduleABI, have)
	}
	return nil
}
