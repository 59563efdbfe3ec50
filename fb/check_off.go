//go:build fbutil_unchecked

package fb

// checkViews is false in unchecked builds: typed views trust the caller and
// a format mismatch yields undefined results.
const checkViews = false
