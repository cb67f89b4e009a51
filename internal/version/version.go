package version

// Build metadata, stamped via -ldflags at release time. The defaults mark
// a binary built straight from the working tree.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)
