// Command cachectl lets operators inspect and invalidate cached content.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dfe-analytical-services/ees-cache/cancellation"
	"github.com/dfe-analytical-services/ees-cache/tui"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		code, msg := cancellation.Status(err)
		tui.ShowError(os.Stderr, "%s: %s", msg, err)
		if code == cancellation.StatusClientClosedRequest {
			stop()
			os.Exit(130)
		}
		fmt.Fprintln(os.Stderr, tui.Muted("run cachectl --help for usage"))
		stop()
		os.Exit(1)
	}
}
