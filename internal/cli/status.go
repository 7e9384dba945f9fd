package cli

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/harun/vesselplan/pkg/gateway"
	"github.com/spf13/cobra"
)

var (
	statusAddr    string
	statusTimeout time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show gateway status",
	Long: `Show whether a vesselplan gateway is answering and which WebSocket
clients are connected to it. The address defaults to gateway.host and
gateway.port from the config.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "", "gateway base URL (default from config)")
	statusCmd.Flags().DurationVar(&statusTimeout, "timeout", 3*time.Second, "request timeout")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	rt, err := setupEnv(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	base := statusAddr
	if base == "" {
		base = "http://" + net.JoinHostPort(rt.cfg.Gateway.Host, strconv.Itoa(rt.cfg.Gateway.Port))
	}
	client := &http.Client{Timeout: statusTimeout}
	out := cmd.OutOrStdout()

	resp, err := client.Get(base + "/healthz")
	if err != nil {
		fmt.Fprintln(out, "Status: stopped")
		return nil
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(out, "Status: unhealthy (%s)\n", resp.Status)
		return nil
	}

	fmt.Fprintln(out, "Status: running")
	fmt.Fprintf(out, "Address: %s\n", base)

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, base+"/v1/clients", nil)
	if err != nil {
		return err
	}
	if rt.cfg.Gateway.SharedSecret != "" {
		req.Header.Set(gateway.SecretHeader, rt.cfg.Gateway.SharedSecret)
	}
	resp, err = client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to list clients: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to list clients: %s", resp.Status)
	}

	var body struct {
		Clients []gateway.ClientInfo `json:"clients"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("invalid clients response: %w", err)
	}

	fmt.Fprintf(out, "Clients: %d\n", len(body.Clients))
	for _, c := range body.Clients {
		idle := ""
		if c.Idle {
			idle = " (idle)"
		}
		fmt.Fprintf(out, "  %s  %-10s  %-15s  up %s%s\n",
			c.ID, c.Kind, c.IPAddress, formatDuration(time.Since(c.ConnectedAt)), idle)
	}
	return nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
