// Package blobstore mediates reads and writes against a remote object-storage service.
//
// The Gateway uploads single objects and exposes container and object listings as lazy,
// pull-based iterators: each page of results costs exactly one Backend round trip, and a
// page is only requested once the consumer has drained the previous one. Continuation
// tokens issued by the service are passed back verbatim and never inspected.
//
// Backends adapt a concrete SDK (Azure Blob Storage, S3) or keep everything in memory for
// tests and local development. A Backend is built once at startup and shared; it must be
// safe for concurrent use. Iterators are owned by a single consumer.
package blobstore
