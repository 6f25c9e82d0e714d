package sqlstore

// Schema is the DDL for the four logical tables. Applied by
// cmd/syncstore-migrate; kept here, next to the store it migrates for,
// rather than in a separate migrations directory.
const Schema = `
CREATE TABLE IF NOT EXISTS collections (
	id   INT UNSIGNED NOT NULL PRIMARY KEY,
	name VARCHAR(32)  NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS user_collections (
	userid        BIGINT UNSIGNED NOT NULL,
	collection_id INT UNSIGNED    NOT NULL,
	modified      BIGINT          NOT NULL,
	count         INT             NULL,
	total_bytes   BIGINT          NULL,
	PRIMARY KEY (userid, collection_id)
);

CREATE TABLE IF NOT EXISTS bsos (
	userid        BIGINT UNSIGNED NOT NULL,
	collection_id INT UNSIGNED    NOT NULL,
	bso_id        VARCHAR(64)     NOT NULL,
	sortindex     INT             NULL,
	payload       LONGTEXT        NOT NULL,
	modified      BIGINT          NOT NULL,
	expiry        BIGINT          NOT NULL,
	PRIMARY KEY (userid, collection_id, bso_id),
	INDEX idx_bsos_expiry (userid, collection_id, expiry),
	INDEX idx_bsos_modified (userid, collection_id, modified),
	INDEX idx_bsos_sortindex (userid, collection_id, sortindex)
);

CREATE TABLE IF NOT EXISTS batches (
	userid        BIGINT UNSIGNED NOT NULL,
	collection_id INT UNSIGNED    NOT NULL,
	batch_id      BIGINT          NOT NULL,
	bsos          LONGBLOB        NOT NULL,
	expiry        BIGINT          NOT NULL,
	PRIMARY KEY (userid, collection_id, batch_id)
);
`
