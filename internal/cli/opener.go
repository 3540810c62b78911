package cli

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/exec"
	"runtime"

	"github.com/mkrupp/apptemplate/internal/infra/logging"
	http_ "github.com/mkrupp/apptemplate/internal/infra/transport/http"
)

// openURL prints target and tries to open it in the system browser.
func openURL(out io.Writer) func(string) error {
	return func(target string) error {
		fmt.Fprintf(out, "Open this URL to continue:\n  %s\n", target)

		var cmd *exec.Cmd

		switch runtime.GOOS {
		case "darwin":
			cmd = exec.Command("open", target)
		case "windows":
			cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", target)
		default:
			cmd = exec.Command("xdg-open", target)
		}

		if err := cmd.Start(); err != nil {
			logging.GetLogger("cli.opener").Debug("no system browser", "error", err)

			return nil
		}

		go func() { _ = cmd.Wait() }()

		return nil
	}
}

// loopback receives the provider's redirect back to the CLI the way a native
// app receives a deep link.
type loopback struct {
	URL   string
	Links chan string
}

func listenLoopback(ctx context.Context) (*loopback, error) {
	sock, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen loopback: %w", err)
	}

	origin := "http://" + sock.Addr().String()
	lb := &loopback{URL: origin + "/callback", Links: make(chan string, 1)}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case lb.Links <- origin + r.URL.RequestURI():
		default:
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "Signed in. You can close this window.\n")
	})

	go func() {
		//nolint:exhaustruct
		_ = http_.Serve(ctx, sock, handler, http_.HTTPTransportConfig{}, logging.GetLogger("cli.loopback"))
	}()

	return lb, nil
}
