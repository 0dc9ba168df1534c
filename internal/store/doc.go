// Package store owns the embedded SQLite database that backs lectern's fast
// tier: directory references, per-lecture watch progress, the remote sync
// outbox, and cached folder scan fingerprints.
//
// Open applies pragmas and the embedded schema, refusing to run against a
// database created by a different schema version. Domain packages own their SQL
// and use the retrying Exec/Query/WithTx helpers exposed here so SQLITE_BUSY
// contention is absorbed consistently.
package store
