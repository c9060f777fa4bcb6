// Package version exposes build identification injected at link time.
package version

//nolint:gochecknoglobals // set through -ldflags
var (
	name    = "assay"
	version = "dev"
	commit  = "unknown"
)

// Name returns the binary name.
func Name() string {
	return name
}

// Version returns the release version, "dev" for local builds.
func Version() string {
	return version
}

// Commit returns the VCS revision the binary was built from.
func Commit() string {
	return commit
}
