package main

import (
	"fmt"

	"github.com/Sternrassler/osf-archiver/pkg/logging"
	"github.com/Sternrassler/osf-archiver/pkg/upload"
)

// Run executes the upload command.
func (c *UploadCmd) Run(deps *Dependencies) error {
	u := upload.NewUploader(deps.Objects, upload.Config{
		MaxConcurrency: c.MaxConcurrency,
	}, logging.NewLogger("upload"))

	result, err := u.UploadDir(deps.Ctx, c.Source)
	if err != nil {
		return err
	}

	fmt.Fprintf(deps.Stdout, "Uploaded %d files (%d bytes) to %s\n", result.Files, result.Bytes, deps.Objects.Bucket())
	return nil
}
