// Package remote provides the HTTP client navtags uses to fetch tags from
// the business-application service.
//
// This package is internal to navtags. It only moves bytes: decoding the
// response into tags is done by the decoders in the navtags package.
package remote
