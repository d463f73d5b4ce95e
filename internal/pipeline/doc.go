// Package pipeline wires processors to storage.
//
// A DataProcessor loads one blob, reduces a processor chain over it and
// optionally saves the result. A BucketJoin fans in every selected blob of
// a bucket, joins them with a JoinMethod and saves the joined table. The
// league specific joins (wages with valuations, stats with both) and the
// train/validation/test split are built from those two shapes, and the
// Catalog exposes them by name to the CLI and the operations manager.
package pipeline
