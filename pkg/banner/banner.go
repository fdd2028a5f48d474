package banner

import (
	"fmt"

	"cadence/pkg/config"
)

const banner = `
 ██████╗ █████╗ ██████╗ ███████╗███╗   ██╗ ██████╗███████╗
██╔════╝██╔══██╗██╔══██╗██╔════╝████╗  ██║██╔════╝██╔════╝
██║     ███████║██║  ██║█████╗  ██╔██╗ ██║██║     █████╗
██║     ██╔══██║██║  ██║██╔══╝  ██║╚██╗██║██║     ██╔══╝
╚██████╗██║  ██║██████╔╝███████╗██║ ╚████║╚██████╗███████╗
 ╚═════╝╚═╝  ╚═╝╚═════╝ ╚══════╝╚═╝  ╚═══╝ ╚═════╝╚══════╝
`

// Print writes the startup banner with the effective runtime settings.
func Print(cfg *config.Config, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Ops addr:    %s\n", cfg.Server.Addr)
	fmt.Printf("Cache path:  %s\n", cfg.Cache.Path)
	fmt.Printf("Backend:     %s\n", cfg.Backend.BaseURL)
	fmt.Printf("Generation:  %s\n", cfg.Generation.BaseURL)
	if version != "" {
		fmt.Printf("Version:     %s\n", version)
	}
	if cfg.Retention.Enabled {
		fmt.Printf("Retention:   enabled (cron=%s, max_age=%s)\n", cfg.Retention.Cron, cfg.Retention.MaxAge.Std())
	} else {
		fmt.Println("Retention:   disabled")
	}
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST /v1/conversations/{id}/messages        - Send a user message")
	fmt.Println("GET  /v1/conversations/{id}/transcript      - Load the reconciled transcript")
	fmt.Println("POST /v1/conversations/{id}/read            - Mark a conversation read")
	fmt.Println("POST /v1/conversations/{id}/force-complete  - Flush an active fragment sequence")
	fmt.Println("PUT  /v1/connectivity                       - Report online/offline")
	fmt.Println("GET  /statusz | /healthz | /readyz | /metrics")
	fmt.Println("\n== Logs: =================================================")
}
