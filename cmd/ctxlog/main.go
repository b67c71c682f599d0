// Package main implements the ctxlog CLI for the contextlog HTTP server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the contextlog HTTP server
	serverURL string
	// userID is sent as X-User-ID on every API request
	userID string
	// outputJSON prints raw responses instead of tables
	outputJSON bool
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ctxlog",
	Short: "CLI for the contextlog journal server",
	Long: `ctxlog is a command-line interface for the contextlog HTTP server.
It logs receipts and moments and shows the dead-zone report, perspective
cards, weekly reflection, due outcome checks and insights.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9090", "contextlog server URL")
	rootCmd.PersistentFlags().StringVar(&userID, "user", os.Getenv("CONTEXTLOG_USER"), "user id (defaults to $CONTEXTLOG_USER)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output results as JSON")
	rootCmd.AddCommand(healthCmd)
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check contextlog server health",
	Long: `Check the health status of the contextlog HTTP server.

Examples:
  # Check health
  ctxlog health

  # Check health on a different server
  ctxlog health --server http://localhost:8080`,
	RunE: runHealth,
}

// HealthResponse matches internal/http HealthResponse
type HealthResponse struct {
	Status string `json:"status"`
}

// errorResponse matches internal/http ErrorResponse
type errorResponse struct {
	Error string `json:"error"`
}

func runHealth(cmd *cobra.Command, args []string) error {
	var health HealthResponse
	if err := call(http.MethodGet, "/health", nil, &health); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Server Status: %s\n", health.Status)
	fmt.Fprintf(out, "Server URL: %s\n", serverURL)
	return nil
}

// call sends a request to the server and decodes the response into out,
// which may be nil. API paths require --user.
func call(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		reqJSON, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(reqJSON)
	}

	url := serverURL + path
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if path != "/health" {
		if userID == "" {
			return fmt.Errorf("--user is required")
		}
		req.Header.Set("X-User-ID", userID)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		var e errorResponse
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return fmt.Errorf("server returned status %d: %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// printJSON writes v indented, for --json.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
