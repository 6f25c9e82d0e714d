package spannerstore

// DDL is the set of Cloud Spanner CREATE TABLE statements for
// cmd/syncstore-migrate to apply via the admin API. Collections is a
// top-level table (it has no per-user key); UserCollections, Bsos, and
// Batches are interleaved so a user's rows co-locate on the same Spanner
// split.
var DDL = []string{
	`CREATE TABLE Collections (
		CollectionId INT64 NOT NULL,
		Name         STRING(32) NOT NULL,
	) PRIMARY KEY (CollectionId)`,

	`CREATE UNIQUE INDEX CollectionsName ON Collections (Name)`,

	`CREATE TABLE UserCollections (
		FxaUid       STRING(64) NOT NULL,
		CollectionId INT64      NOT NULL,
		Modified     TIMESTAMP  NOT NULL,
		TotalBytes   INT64,
		Count        INT64,
	) PRIMARY KEY (FxaUid, CollectionId)`,

	`CREATE TABLE Bsos (
		FxaUid       STRING(64)  NOT NULL,
		CollectionId INT64       NOT NULL,
		BsoId        STRING(64)  NOT NULL,
		SortIndex    INT64,
		Payload      STRING(MAX) NOT NULL,
		Modified     TIMESTAMP   NOT NULL,
		Expiry       TIMESTAMP   NOT NULL,
	) PRIMARY KEY (FxaUid, CollectionId, BsoId),
	  INTERLEAVE IN PARENT UserCollections ON DELETE CASCADE`,

	`CREATE INDEX BsosExpiry ON Bsos (FxaUid, CollectionId, Expiry)`,
	`CREATE INDEX BsosModified ON Bsos (FxaUid, CollectionId, Modified DESC)`,
	`CREATE INDEX BsosSortIndex ON Bsos (FxaUid, CollectionId, SortIndex DESC)`,

	`CREATE TABLE Batches (
		FxaUid       STRING(64) NOT NULL,
		CollectionId INT64      NOT NULL,
		BatchId      INT64      NOT NULL,
		Bsos         BYTES(MAX) NOT NULL,
		Expiry       TIMESTAMP  NOT NULL,
	) PRIMARY KEY (FxaUid, CollectionId, BatchId),
	  INTERLEAVE IN PARENT UserCollections ON DELETE CASCADE`,
}
