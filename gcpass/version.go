package gcpass

import (
	"github.com/samber/lo"

	"github.com/kolkov/gclower/internal/catalog"
	"github.com/kolkov/gclower/internal/layout"
)

// Version information for the GC lowering pass.
const (
	// Version is the current version of the pass.
	Version = "0.1.0"

	// VersionMajor is the major version number.
	VersionMajor = 0

	// VersionMinor is the minor version number.
	VersionMinor = 1

	// VersionPatch is the patch version number.
	VersionPatch = 0

	// ABI is the runtime ABI version lowered code targets.
	ABI = layout.CurrentABI
)

// Info describes the pass.
type Info struct {
	// Version is the pass version string.
	Version string

	// ABI is the runtime ABI version.
	ABI string

	// Collectors lists the supported collector names.
	Collectors []string

	// Intrinsics lists the recognized intrinsic names.
	Intrinsics []string
}

// GetInfo returns information about the pass.
//
// Example:
//
//	info := gcpass.GetInfo()
//	fmt.Printf("gclower %s (runtime ABI %s)\n", info.Version, info.ABI)
func GetInfo() Info {
	return Info{
		Version:    Version,
		ABI:        ABI,
		Collectors: []string{CollectorPool.String(), CollectorCursor.String()},
		Intrinsics: lo.Map(catalog.Intrinsics(), func(i catalog.Intrinsic, _ int) string { return i.Name }),
	}
}
