package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"gtasksync/internal/app"
	"gtasksync/internal/config"
	"gtasksync/internal/exitcode"
	"gtasksync/internal/service"
)

func init() {
	Register(&BackupCmd{})
}

// BackupCmd implements the backup command.
type BackupCmd struct {
	out string
}

func (c *BackupCmd) Name() string      { return "backup" }
func (c *BackupCmd) Aliases() []string { return []string{"export"} }
func (c *BackupCmd) Synopsis() string  { return "Write the cache as a JSON snapshot" }
func (c *BackupCmd) Usage() string     { return "gtasksync backup [--out <file>]" }
func (c *BackupCmd) NeedsAuth() bool   { return false }

func (c *BackupCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.out, "out", "", "")
	fs.StringVar(&c.out, "o", "", "")
}

func (c *BackupCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	a, code := openApp(cfg, nil, errOut, app.Options{})
	if a == nil {
		return code
	}
	defer a.Close()

	path := c.out
	var err error
	if path == "" {
		path, err = a.Store.Backup(cfg.BackupPath(), time.Now())
	} else {
		err = a.Store.Export(path)
	}
	if err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return exitcode.BackendError
	}
	if !cfg.Quiet {
		fmt.Fprintln(out, path)
	}
	return exitcode.Success
}
