package entity

// FetchResult is the per-URL outcome of the fetch engine. It lives only
// for the duration of a run and feeds the archive post-processor and the
// final summary.
type FetchResult struct {
	URL     string
	RelPath string
	Skipped bool  // The ledger already had the URL, no network I/O was performed
	Err     error // Set after the retry budget is exhausted
}

func (r FetchResult) OK() bool {
	return r.Err == nil
}
