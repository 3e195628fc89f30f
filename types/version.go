package types

// Version is the canonical project version, shared by the CLI and the
// report payload.
const Version = "0.3.0"
