// Package storage wraps the MinIO client for S3 compatible object stores.
//
// The Client interface lists only the calls the review archive makes, so tests can
// substitute mocks.Client. NewClient does not contact the server; the first bucket
// call does.
package storage
