//go:build !fbutil_unchecked

package fb

// checkViews enables format checks in typed view accessors.
const checkViews = true
