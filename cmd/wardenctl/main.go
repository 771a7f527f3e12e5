// Command wardenctl is a thin client for the warden HTTP API, for
// poking a running server from the terminal.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// config is read from --config or ~/.wardenctl.yaml if present. Flags
// win over the file.
type config struct {
	Server string `yaml:"server"`
	APIKey string `yaml:"api_key"`
}

var (
	flagServer string
	flagAPIKey string
	flagConfig string

	cfg config
)

var rootCmd = &cobra.Command{
	Use:   "wardenctl",
	Short: "Client for the warden guard server",
	Long: `wardenctl talks to a running warden server: validate tool code,
check text against content policy, inspect rate limits, and manage
custom tools.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	},
	SilenceUsage: true,
}

var validateCodeCmd = &cobra.Command{
	Use:   "validate-code [file]",
	Short: "Statically validate tool code (reads stdin if no file)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := readInput(args)
		if err != nil {
			return err
		}
		var resp struct {
			Valid      bool     `json:"valid"`
			Violations []string `json:"violations"`
		}
		if err := post("/api/warden/code/validate", map[string]any{"code": code}, &resp); err != nil {
			return err
		}
		if resp.Valid {
			fmt.Println("valid")
			return nil
		}
		for _, v := range resp.Violations {
			fmt.Println(v)
		}
		os.Exit(1)
		return nil
	},
}

var checkContentCmd = &cobra.Command{
	Use:   "check-content [file]",
	Short: "Check text against content policy (reads stdin if no file)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		identity, _ := cmd.Flags().GetString("identity")
		phase, _ := cmd.Flags().GetString("phase")
		text, err := readInput(args)
		if err != nil {
			return err
		}
		var resp struct {
			Valid      bool     `json:"valid"`
			Violations []string `json:"violations"`
			Sanitized  string   `json:"sanitized"`
		}
		body := map[string]any{"identity": identity, "text": text, "phase": phase}
		if err := post("/api/warden/content/validate", body, &resp); err != nil {
			return err
		}
		printJSON(resp)
		if !resp.Valid {
			os.Exit(1)
		}
		return nil
	},
}

var ratelimitCmd = &cobra.Command{
	Use:   "ratelimit <identity>",
	Short: "Show an identity's rate-limit windows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp json.RawMessage
		path := "/api/warden/identities/" + url.PathEscape(args[0]) + "/ratelimit"
		if err := get(path, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Manage custom tools",
}

var toolsListCmd = &cobra.Command{
	Use:   "list <identity>",
	Short: "List an identity's registered tools",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp json.RawMessage
		path := "/api/warden/identities/" + url.PathEscape(args[0]) + "/tools"
		if err := get(path, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

var toolsDeleteCmd = &cobra.Command{
	Use:   "delete <identity> <name>",
	Short: "Remove a registered tool",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/api/warden/identities/" + url.PathEscape(args[0]) +
			"/tools/" + url.PathEscape(args[1])
		return request(http.MethodDelete, path, nil, nil)
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recent turn events",
	RunE: func(cmd *cobra.Command, args []string) error {
		identity, _ := cmd.Flags().GetString("identity")
		limit, _ := cmd.Flags().GetInt("limit")
		var resp json.RawMessage
		path := fmt.Sprintf("/api/warden/events?identity=%s&limit=%d",
			url.QueryEscape(identity), limit)
		if err := get(path, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset <identity>",
	Short: "Reset an identity's session state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/api/warden/identities/" + url.PathEscape(args[0]) + "/reset"
		return post(path, map[string]any{}, nil)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "", "Server base URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&flagAPIKey, "api-key", "", "API key for authenticated endpoints")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default ~/.wardenctl.yaml)")

	checkContentCmd.Flags().String("identity", "default", "Identity whose policy applies")
	checkContentCmd.Flags().String("phase", "input", "Validation phase: input or output")
	eventsCmd.Flags().String("identity", "", "Filter events to one identity")
	eventsCmd.Flags().Int("limit", 50, "Maximum events to return")

	toolsCmd.AddCommand(toolsListCmd, toolsDeleteCmd)
	rootCmd.AddCommand(validateCodeCmd, checkContentCmd, ratelimitCmd, toolsCmd, eventsCmd, resetCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() error {
	path := flagConfig
	if path == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, ".wardenctl.yaml")
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return fmt.Errorf("parse %s: %w", path, err)
			}
		} else if flagConfig != "" {
			return err
		}
	}
	if flagServer != "" {
		cfg.Server = flagServer
	}
	if cfg.Server == "" {
		cfg.Server = "http://localhost:8080"
	}
	if flagAPIKey != "" {
		cfg.APIKey = flagAPIKey
	}
	return nil
}

func readInput(args []string) (string, error) {
	if len(args) == 1 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func get(path string, out any) error {
	return request(http.MethodGet, path, nil, out)
}

func post(path string, body any, out any) error {
	return request(http.MethodPost, path, body, out)
}

func request(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, strings.TrimRight(cfg.Server, "/")+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Detail != "" {
			return fmt.Errorf("%s: %s", resp.Status, apiErr.Detail)
		}
		return fmt.Errorf("%s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(data))
}
