// Package receipts implements the receipt upload pipeline: validation of an
// incoming submission, persistence of the receipt file and its metadata
// record, and construction of the public file URL. Storage is reached only
// through the BlobStore and RecordStore interfaces so the HTTP layer, the
// production binary and tests can each supply their own backends.
package receipts
