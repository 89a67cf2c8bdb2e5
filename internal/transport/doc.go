// Package transport provides the HTTP GET collaborator used by carepulse
// queries.
//
// This package is internal to carepulse. It knows nothing about caching,
// retries or payload shapes: it issues one request and reports what happened
// as a [Response]. Classification of failures into network and server errors
// happens in the carepulse package.
package transport
