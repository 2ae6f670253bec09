// Package persistence stores the configuration a Secure Control Protocol
// device must keep across restarts: the shared password and its version,
// the device identity and name, and the operator Wi-Fi credentials.
//
// A Backend persists the whole State record at once. Store layers the
// granular accessors the protocol needs on top of any Backend. Three
// backends are provided: MemoryBackend, FileBackend (a CBOR image file) and
// SQLiteBackend.
package persistence
