package ir

// SchemaVersion is bumped whenever the canonical content of a record
// changes shape. It is part of every hash domain.
const SchemaVersion = "v1"
