package common

import "fmt"

var (
	ErrMissingBaseURL     = fmt.Errorf("no base URL specified")
	ErrMissingDownloadDir = fmt.Errorf("no download directory specified")
	ErrNotZipFileError    = fmt.Errorf("not a valid zip file")
	ErrUnexpectedStatus   = fmt.Errorf("unexpected response status")
)
