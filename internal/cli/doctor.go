package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/synheart/synheart-seizure/internal/config"
	"github.com/synheart/synheart-seizure/internal/scenario"
	"github.com/synheart/synheart-seizure/internal/store"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration and environment",
	Long:  `Validates the configuration, scenarios, storage and port availability, and prints connection examples.`,
	RunE:  runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Synheart Seizure Environment Check")
	fmt.Fprintf(out, "Go Version:        %s\n", runtime.Version())
	fmt.Fprintf(out, "OS/Arch:           %s/%s\n\n", runtime.GOOS, runtime.GOARCH)

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(out, "❌ %v\n", err)
		return err
	}
	fmt.Fprintln(out, "✅ Configuration valid")

	failures := 0
	check := func(ok bool, good, bad string) {
		if ok {
			fmt.Fprintf(out, "✅ %s\n", good)
			return
		}
		failures++
		fmt.Fprintf(out, "❌ %s\n", bad)
	}

	if len(cfg.Contacts) == 0 && cfg.Escalation.Directory == "static" {
		fmt.Fprintln(out, "⚠️  No emergency contacts configured; escalation will report an error")
	} else {
		fmt.Fprintf(out, "✅ %d emergency contacts (%s directory)\n", len(cfg.Contacts), cfg.Escalation.Directory)
	}

	registry, err := scenario.Defaults(getScenarioDir())
	check(err == nil, fmt.Sprintf("Scenarios loaded: %v", listOrNil(registry)), fmt.Sprintf("Scenarios failed to load: %v", err))

	if p := cfg.Store.SQLitePath; p != "" {
		check(sqliteWritable(p), "SQLite history writable: "+p, "SQLite history not writable: "+p)
	}
	if p := cfg.Risk.WasmPath; cfg.Risk.Assessor == "wasm" {
		_, err := os.Stat(p)
		check(err == nil, "Risk model found: "+p, "Risk model missing: "+p)
	}

	if cfg.Server.Enabled {
		if isPortAvailable(cfg.Server.Host, cfg.Server.Port) {
			fmt.Fprintf(out, "✅ Port %d is available\n\n", cfg.Server.Port)
		} else {
			fmt.Fprintf(out, "⚠️  Port %d is in use\n", cfg.Server.Port)
			fmt.Fprintf(out, "   Set server.port or SEIZURE_SERVER_PORT\n\n")
		}
		printConnectionExamples(out, cfg)
	}

	if failures > 0 {
		return fmt.Errorf("%d checks failed", failures)
	}
	fmt.Fprintln(out, "✅ Environment check complete")
	return nil
}

func listOrNil(r *scenario.Registry) []string {
	if r == nil {
		return nil
	}
	return r.List()
}

func sqliteWritable(path string) bool {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return false
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := store.OpenSQLite(ctx, path)
	if err != nil {
		return false
	}
	s.Close()
	return true
}

func printConnectionExamples(out io.Writer, cfg *config.Config) {
	addr := cfg.Server.Addr()
	auth := ""
	if cfg.Server.Token != "" {
		auth = ` -H "Authorization: Bearer $SEIZURE_API_TOKEN"`
	}

	fmt.Fprintln(out, "📡 Connection Examples:")
	fmt.Fprintln(out)

	fmt.Fprintln(out, "curl:")
	fmt.Fprintf(out, "  curl http://%s/v1/episode\n", addr)
	fmt.Fprintf(out, "  curl -X POST%s http://%s/v1/episode/start\n", auth, addr)
	fmt.Fprintf(out, "  curl -N http://%s/events/sse\n", addr)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "JavaScript:")
	fmt.Fprintf(out, "  const ws = new WebSocket('ws://%s/events');\n", addr)
	fmt.Fprintln(out, "  ws.onmessage = (e) => console.log(JSON.parse(e.data));")
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Go:")
	fmt.Fprintf(out, "  conn, _, err := websocket.DefaultDialer.Dial(\"ws://%s/events\", nil)\n", addr)
	fmt.Fprintln(out, "  for {")
	fmt.Fprintln(out, "    _, message, err := conn.ReadMessage()")
	fmt.Fprintln(out, "    var event Event")
	fmt.Fprintln(out, "    json.Unmarshal(message, &event)")
	fmt.Fprintln(out, "  }")
	fmt.Fprintln(out)
}
