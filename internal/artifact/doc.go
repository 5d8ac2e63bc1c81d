// Package artifact resolves, extracts and verifies the managed executable.
//
// The runner ships one or more builds of the managed executable as bundled
// resources, named "<base>-<arch>" (for example "yatori-go-console-arm64")
// with an optional generic "<base>" fallback. At run time the store detects
// the platform architecture, picks the best resource, and materialises it to
// a writable directory with the execute bit set.
//
// Architecture tags: arm64, arm, x86_64, x86, unknown.
//
// Example usage:
//
//	store := artifact.NewStore(artifact.Config{
//	    Dir:      "/var/lib/yatori/bin",
//	    BaseName: "yatori-go-console",
//	}, artifact.NewDirResources("/usr/share/yatori/assets"))
//
//	path, err := store.EnsureReady(ctx)
//	if errors.Is(err, artifact.ErrArtifactNotFound) {
//	    // nothing bundled for this platform
//	}
package artifact
