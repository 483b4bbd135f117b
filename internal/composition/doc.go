// Package composition holds the vocabulary shared by the container, parts and
// catalogs: the error taxonomy, batches and results.
//
// Errors raised while a batch is validated or committed are never returned
// one by one. They are collected as *Error values, each naming the part and
// definition involved, and surfaced together as an *AggregateError so a
// caller sees every mismatch of a batch at once.
package composition
