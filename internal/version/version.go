package version

// Version is the current version of vmcrypt.
// Use semantic versioning: MAJOR.MINOR.PATCH
const Version = "0.3.0"

// SchemaNote names the on-disk formats this build reads and writes.
const SchemaNote = "azure_crypt_mount v1, journal schema v2"
