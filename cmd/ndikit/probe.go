package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/quic-go/quic-go/http3"
	"github.com/spf13/cobra"

	"github.com/zsiec/ndikit/pkg/version"
)

func newProbeCmd() *cobra.Command {
	var (
		url      string
		insecure bool
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Request an endpoint of a running server over HTTP/3",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt := &http3.RoundTripper{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: insecure,
				},
			}
			defer rt.Close()
			client := &http.Client{Transport: rt, Timeout: timeout}
			return probe(cmd.Context(), client, url, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&url, "url", "https://localhost:8443/health", "URL to request")
	cmd.Flags().BoolVar(&insecure, "insecure", true, "Skip TLS certificate verification")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")
	return cmd
}

func probe(ctx context.Context, client *http.Client, url string, out io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", version.GetInfo().UserAgent())

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	fmt.Fprintf(out, "Status: %s\n", resp.Status)
	fmt.Fprintf(out, "Protocol: %s\n", resp.Proto)
	fmt.Fprintf(out, "Time: %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(out, "Headers:\n")
	keys := make([]string, 0, len(resp.Header))
	for k := range resp.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "  %s: %v\n", k, resp.Header[k])
	}
	fmt.Fprintf(out, "\nBody (%s):\n", humanize.Bytes(uint64(len(body))))
	if isText(resp.Header.Get("Content-Type")) {
		fmt.Fprintf(out, "%s\n", body)
	}
	return nil
}

func isText(contentType string) bool {
	return contentType == "" ||
		strings.HasPrefix(contentType, "application/json") ||
		strings.HasPrefix(contentType, "text/")
}
