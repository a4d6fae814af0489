package entity

// Link is an anchor target discovered on a directory listing page.
type Link struct {
	URL   string // Absolute URL, resolved against the page it was found on
	IsDir bool   // The href ended with a path separator
}
