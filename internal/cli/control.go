package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const (
	defaultAPI     = "http://localhost:5000"
	requestTimeout = 10 * time.Second
	maxReplyBytes  = 1 << 20
)

// apiError mirrors the server's JSON error body.
type apiError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func healthCmd(g *globals) *cobra.Command {
	var api string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the server is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return call(cmd.Context(), g, http.MethodGet, api, "/api/health", nil)
		},
	}
	cmd.Flags().StringVar(&api, "api", defaultAPI, "server base URL")
	return cmd
}

func broadcastCmd(g *globals) *cobra.Command {
	var api string
	cmd := &cobra.Command{
		Use:   "broadcast MESSAGE",
		Short: "Send a notification to every connected client",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"message": strings.Join(args, " ")}
			return call(cmd.Context(), g, http.MethodPost, api, "/api/broadcast", body)
		},
	}
	cmd.Flags().StringVar(&api, "api", defaultAPI, "server base URL")
	return cmd
}

func statusCmd(g *globals) *cobra.Command {
	var api string
	cmd := &cobra.Command{
		Use:   "status DEVICE STATUS",
		Short: "Report a device status to the device's subscribers",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/devices/" + url.PathEscape(args[0]) + "/status"
			body := map[string]string{"status": strings.Join(args[1:], " ")}
			return call(cmd.Context(), g, http.MethodPost, api, path, body)
		},
	}
	cmd.Flags().StringVar(&api, "api", defaultAPI, "server base URL")
	return cmd
}

// call sends one request to the control plane and prints the reply body.
// Non-2xx replies become errors carrying the server's message.
func call(ctx context.Context, g *globals, method, base, path string, body any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(base, "/")+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	reply, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return fmt.Errorf("reading reply: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiError
		if json.Unmarshal(reply, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%s %s: %d %s: %s", method, path, resp.StatusCode, apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}

	fmt.Fprintln(g.stdout, strings.TrimSpace(string(reply)))
	return nil
}
