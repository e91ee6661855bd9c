// Package errors provides the structured error type shared by resilix packages.
//
// AppError carries a machine-readable code, a message, a retryable flag and
// optional details. Domain packages return their own typed errors (for
// example database.DriverError) and translate them into AppError at the
// boundary where a caller wants a uniform shape.
package errors
