package main

import (
	"fmt"

	"github.com/Sternrassler/osf-archiver/pkg/files"
	"github.com/Sternrassler/osf-archiver/pkg/logging"
)

// Run executes the files command.
func (c *FilesCmd) Run(deps *Dependencies) error {
	d := files.NewDownloader(deps.Client, files.Config{
		FilesBaseURL: c.FilesURL,
		KeepArchive:  c.KeepArchive,
	}, logging.NewLogger("files"))

	result, err := d.Download(deps.Ctx, c.Directory, c.GUID)
	if err != nil {
		return err
	}

	fmt.Fprintf(deps.Stdout, "Extracted %d files of %s to %s\n", result.Files, c.GUID, result.Dir)
	return nil
}
