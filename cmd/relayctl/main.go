package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/artifactchain/relay/pkg/broker"
	"github.com/artifactchain/relay/pkg/domain"
)

type ui struct {
	title func(a ...any) string
	ok    func(a ...any) string
	info  func(a ...any) string
	warn  func(a ...any) string
	err   func(a ...any) string
	dim   func(a ...any) string
}

func newUI() *ui {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		color.NoColor = true
	}
	return &ui{
		title: color.New(color.FgHiCyan, color.Bold).SprintFunc(),
		ok:    color.New(color.FgGreen, color.Bold).SprintFunc(),
		info:  color.New(color.FgCyan).SprintFunc(),
		warn:  color.New(color.FgYellow).SprintFunc(),
		err:   color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:   color.New(color.FgHiBlack).SprintFunc(),
	}
}

type profile struct {
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	PeerURL       string `yaml:"peerUrl"`
}

type cliConfig struct {
	CurrentProfile string             `yaml:"currentProfile"`
	Profiles       map[string]profile `yaml:"profiles"`
}

func main() {
	redisAddr := getenv("RELAY_REDIS_ADDR", "localhost:6379")
	redisPassword := getenv("RELAY_REDIS_PASSWORD", "")
	peerURL := getenv("RELAY_PEER_URL", "http://localhost:8080")
	profileName := getenv("RELAY_PROFILE", "")
	ui := newUI()

	root := &cobra.Command{
		Use:   "relayctl",
		Short: "relayctl CLI",
		Long:  "relayctl CLI for publishing artifact events and inspecting relay queues.",
	}
	root.SetHelpTemplate(helpTemplate(ui))
	root.SilenceUsage = true

	root.PersistentFlags().StringVar(&redisAddr, "redis-addr", redisAddr, "Redis broker address")
	root.PersistentFlags().StringVar(&redisPassword, "redis-password", redisPassword, "Redis password")
	root.PersistentFlags().StringVar(&peerURL, "peer-url", peerURL, "Mock peer base URL")
	root.PersistentFlags().StringVar(&profileName, "profile", profileName, "Config profile")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, _, _ := loadConfig()
		active := resolveProfileName(profileName, cfg)
		prof := cfg.Profiles[active]

		flags := cmd.Flags()
		if !flags.Changed("redis-addr") {
			if v := strings.TrimSpace(os.Getenv("RELAY_REDIS_ADDR")); v != "" {
				redisAddr = v
			} else if prof.RedisAddr != "" {
				redisAddr = prof.RedisAddr
			}
		}
		if !flags.Changed("redis-password") {
			if v := strings.TrimSpace(os.Getenv("RELAY_REDIS_PASSWORD")); v != "" {
				redisPassword = v
			} else if prof.RedisPassword != "" {
				redisPassword = prof.RedisPassword
			}
		}
		if !flags.Changed("peer-url") {
			if v := strings.TrimSpace(os.Getenv("RELAY_PEER_URL")); v != "" {
				peerURL = v
			} else if prof.PeerURL != "" {
				peerURL = prof.PeerURL
			}
		}
		return nil
	}

	root.AddCommand(initCmd(&profileName, ui))
	root.AddCommand(publishCmd(&redisAddr, &redisPassword, ui))
	root.AddCommand(queueCmd(&redisAddr, &redisPassword, ui))
	root.AddCommand(peerCmd(&peerURL, ui))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.err("[ERROR]"), err.Error())
		os.Exit(1)
	}
}

func initCmd(profileName *string, ui *ui) *cobra.Command {
	var (
		redisAddr     string
		redisPassword string
		peerURL       string
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize CLI config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := loadConfig()
			if err != nil {
				return err
			}
			active := resolveProfileName(*profileName, cfg)
			prof := cfg.Profiles[active]

			if redisAddr != "" {
				prof.RedisAddr = strings.TrimSpace(redisAddr)
			}
			if prof.RedisAddr == "" {
				prof.RedisAddr = "localhost:6379"
			}
			if redisPassword != "" {
				prof.RedisPassword = strings.TrimSpace(redisPassword)
			}
			if peerURL != "" {
				prof.PeerURL = strings.TrimSpace(peerURL)
			}
			if prof.PeerURL == "" {
				prof.PeerURL = "http://localhost:8080"
			}

			if cfg.Profiles == nil {
				cfg.Profiles = map[string]profile{}
			}
			cfg.Profiles[active] = prof
			if cfg.CurrentProfile == "" || *profileName != "" {
				cfg.CurrentProfile = active
			}

			if err := saveConfig(cfg, cfgPath); err != nil {
				return err
			}
			fmt.Printf("%s Initialized profile '%s' at %s\n", ui.ok("[OK]"), active, cfgPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&redisAddr, "redis-addr", "", "Redis broker address")
	cmd.Flags().StringVar(&redisPassword, "redis-password", "", "Redis password")
	cmd.Flags().StringVar(&peerURL, "peer-url", "", "Mock peer base URL")
	return cmd
}

func publishCmd(redisAddr, redisPassword *string, ui *ui) *cobra.Command {
	var (
		artifactID  string
		title       string
		description string
		keywords    string
		queue       string
		count       int
	)
	cmd := &cobra.Command{
		Use:     "publish",
		Short:   "Publish artifact.created events",
		Example: "relayctl publish --title 'quarterly report' --count 10",
		RunE: func(cmd *cobra.Command, args []string) error {
			if count <= 0 {
				count = 1
			}
			if count > 1 && artifactID != "" {
				return errors.New("--artifact-id cannot be combined with --count > 1")
			}

			b, err := dialBroker(*redisAddr, *redisPassword)
			if err != nil {
				return err
			}
			defer b.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			data := map[string]any{"title": title}
			if description != "" {
				data["description"] = description
			}
			if kws := splitKeywords(keywords); len(kws) > 0 {
				data["keywords"] = kws
			}

			if count == 1 {
				id := artifactID
				if id == "" {
					id = uuid.NewString()
				}
				if err := publishOne(ctx, b, queue, id, data); err != nil {
					return err
				}
				fmt.Printf("%s Published %s to %s\n", ui.ok("[OK]"), id, queue)
				return nil
			}

			bar := progressbar.NewOptions(count,
				progressbar.OptionSetDescription("Publishing events"),
				progressbar.OptionSetWidth(18),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
			for i := 0; i < count; i++ {
				if err := publishOne(ctx, b, queue, uuid.NewString(), data); err != nil {
					return fmt.Errorf("after %d events: %w", i, err)
				}
				_ = bar.Add(1)
			}
			fmt.Printf("%s Published %d events to %s\n", ui.ok("[OK]"), count, queue)
			return nil
		},
	}
	cmd.Flags().StringVar(&artifactID, "artifact-id", "", "Artifact ID (default: random UUID)")
	cmd.Flags().StringVar(&title, "title", "cli artifact", "Artifact title")
	cmd.Flags().StringVar(&description, "description", "", "Artifact description")
	cmd.Flags().StringVar(&keywords, "keywords", "", "Comma-separated keywords")
	cmd.Flags().StringVar(&queue, "queue", broker.QueueCreated, "Target queue")
	cmd.Flags().IntVar(&count, "count", 1, "Number of events to publish")
	return cmd
}

func publishOne(ctx context.Context, b *broker.Broker, queue, artifactID string, data map[string]any) error {
	body, err := json.Marshal(domain.ArtifactCreatedEvent{ArtifactID: artifactID, Payload: data})
	if err != nil {
		return err
	}
	return b.Publish(ctx, queue, body)
}

func queueCmd(redisAddr, redisPassword *string, ui *ui) *cobra.Command {
	inspect := &cobra.Command{
		Use:     "inspect <queue>",
		Short:   "Inspect queue depth",
		Example: "relayctl queue inspect " + broker.QueueCreated,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queue := args[0]
			b, err := dialBroker(*redisAddr, *redisPassword)
			if err != nil {
				return err
			}
			defer b.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			ready, err := b.QueueLength(ctx, queue)
			if err != nil {
				return err
			}
			dead, err := b.DeadLength(ctx, queue)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d | %s: %d\n", ui.ok("READY"), ready, ui.err("DEAD"), dead)
			return nil
		},
	}

	var limit int64
	dead := &cobra.Command{
		Use:     "dead <queue>",
		Short:   "Peek dead-lettered messages",
		Example: "relayctl queue dead " + broker.QueueSubmitted + " --limit 5",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queue := args[0]
			b, err := dialBroker(*redisAddr, *redisPassword)
			if err != nil {
				return err
			}
			defer b.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			msgs, err := b.PeekDead(ctx, queue, limit)
			if err != nil {
				return err
			}
			if len(msgs) == 0 {
				fmt.Println(ui.dim("dead list is empty"))
				return nil
			}
			for i, m := range msgs {
				fmt.Printf("%s %s\n", ui.warn(fmt.Sprintf("[%d]", i)), m)
			}
			return nil
		},
	}
	dead.Flags().Int64Var(&limit, "limit", 10, "Max messages to show")

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Queue operations",
	}
	cmd.AddCommand(inspect, dead)
	return cmd
}

func peerCmd(peerURL *string, ui *ui) *cobra.Command {
	health := &cobra.Command{
		Use:   "health",
		Short: "Probe the mock peer health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := httpGet(*peerURL, "/health")
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return fmt.Errorf("peer unhealthy (%d): %s", status, string(body))
			}
			fmt.Printf("%s %s\n", ui.ok("[OK]"), string(body))
			return nil
		},
	}

	patterns := &cobra.Command{
		Use:   "patterns",
		Short: "Show the peer test marker vocabulary",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := httpGet(*peerURL, "/test-patterns")
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return fmt.Errorf("error (%d): %s", status, string(body))
			}
			var pretty map[string]any
			if err := json.Unmarshal(body, &pretty); err != nil {
				fmt.Println(string(body))
				return nil
			}
			out, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}

	cmd := &cobra.Command{
		Use:   "peer",
		Short: "Mock peer operations",
	}
	cmd.AddCommand(health, patterns)
	return cmd
}

// dialBroker opens a direct Redis connection with a single ping instead of
// the consumer retry loop, so a misconfigured CLI fails fast.
func dialBroker(addr, password string) (*broker.Broker, error) {
	spin := newSpinner(" Connecting to broker...")
	spin.Start()
	defer spin.Stop()

	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("broker unreachable at %s: %w", addr, err)
	}
	return broker.New(rdb, nil), nil
}

func newSpinner(suffix string) *spinner.Spinner {
	spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond)
	spin.Suffix = suffix
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		spin.Writer = io.Discard
	}
	return spin
}

func httpGet(baseURL, path string) (int, []byte, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + path)
	if err != nil {
		return 0, nil, err
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(u.String())
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body, nil
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func splitKeywords(s string) []string {
	var out []string
	for _, k := range strings.Split(s, ",") {
		k = strings.TrimSpace(k)
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

func resolveProfileName(requested string, cfg cliConfig) string {
	if requested != "" {
		return requested
	}
	if cfg.CurrentProfile != "" {
		return cfg.CurrentProfile
	}
	return "default"
}

func loadConfig() (cliConfig, string, error) {
	path := configPath()
	cfg := cliConfig{Profiles: map[string]profile{}}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, path, nil
		}
		return cfg, path, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, path, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]profile{}
	}
	return cfg, path, nil
}

func saveConfig(cfg cliConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func configPath() string {
	if v := strings.TrimSpace(os.Getenv("RELAY_CONFIG_DIR")); v != "" {
		return filepath.Join(v, "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".relayctl", "config.yaml")
	}
	return filepath.Join(home, ".relayctl", "config.yaml")
}

func helpTemplate(ui *ui) string {
	title := ui.title("relayctl")
	return fmt.Sprintf(`%s — CLI for the artifact submission relay

Usage:
  {{.UseLine}}

Commands:
{{range .Commands}}{{if (or .IsAvailableCommand .IsAdditionalHelpTopicCommand)}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

Flags:
  {{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

Global Flags:
  {{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

Config:
  %s

Examples:
  relayctl init
  relayctl publish --title 'quarterly report'
  relayctl publish --title 'please test_gas now' --count 10
  relayctl queue inspect %s
  relayctl queue dead %s --limit 5
  relayctl peer patterns

`, title, configPath(), broker.QueueCreated, broker.QueueSubmitted)
}
