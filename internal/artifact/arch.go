package artifact

import (
	"runtime"
	"strings"
)

// Arch is a canonical architecture tag used to pick a bundled executable.
type Arch string

const (
	ArchARM64   Arch = "arm64"
	ArchARM     Arch = "arm"
	ArchX86_64  Arch = "x86_64" //nolint:revive // Matches the resource suffix
	ArchX86     Arch = "x86"
	ArchUnknown Arch = "unknown"
)

// archRule maps identifier prefixes to a tag. Rules are evaluated in order
// against the whole identifier list, so 64-bit tags must precede their
// 32-bit prefixes ("arm64-v8a" also starts with "arm", "x86_64" with "x86").
type archRule struct {
	arch     Arch
	prefixes []string
}

var archRules = []archRule{
	{arch: ArchARM64, prefixes: []string{"arm64", "aarch64"}},
	{arch: ArchARM, prefixes: []string{"armeabi"}},
	{arch: ArchX86_64, prefixes: []string{"x86_64"}},
	{arch: ArchX86, prefixes: []string{"x86"}},
}

// DetectArchitecture maps an ordered list of platform identifiers to an Arch.
// It always returns a tag, ArchUnknown when nothing matches.
func DetectArchitecture(abis []string) Arch {
	for _, rule := range archRules {
		for _, abi := range abis {
			for _, prefix := range rule.prefixes {
				if strings.HasPrefix(abi, prefix) {
					return rule.arch
				}
			}
		}
	}
	return ArchUnknown
}

// HostABIs returns the platform identifiers of the running process,
// expressed in the same vocabulary as bundled resource names.
func HostABIs() []string {
	return abisForGOARCH(runtime.GOARCH)
}

func abisForGOARCH(goarch string) []string {
	switch goarch {
	case "arm64":
		return []string{"arm64-v8a"}
	case "arm":
		return []string{"armeabi-v7a", "armeabi"}
	case "amd64":
		return []string{"x86_64"}
	case "386":
		return []string{"x86"}
	default:
		return []string{goarch}
	}
}
