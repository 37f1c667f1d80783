// Package intake turns uploaded bytes into decoded RGB views.
//
// Uploads are written flat under a single directory keyed by their sanitized
// base name. Validation checks existence, extension, size and that the whole
// file decodes; anything that fails is excluded from a batch with a reason
// rather than reported as an error.
package intake
