// Command porterd runs the porter daemon in the foreground without the
// CLI wrapper. It is intended for service managers (systemd units,
// containers) that supervise the process themselves; interactive use
// goes through `porter start`.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"porter/internal/config"
	"porter/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	logLevel := flag.String("log-level", "", "override the configured log level")
	develop := flag.Bool("develop", false, "enable development logging")
	flag.Parse()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	opts := daemonrun.Options{
		LogLevel:    *logLevel,
		Development: *develop,
	}
	if err := daemonrun.Run(context.Background(), cfg, opts); err != nil {
		fmt.Fprintf(os.Stderr, "porterd: %v\n", err)
		os.Exit(1)
	}
}
