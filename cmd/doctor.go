package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goswarm/internal/config"
	"github.com/nextlevelbuilder/goswarm/internal/store/sqlite"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("goswarm doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}
	fmt.Printf("  Data dir: %s\n", cfg.DataDir)

	fmt.Printf("  Database: %s", cfg.DBPath())
	db, err := sqlite.Open(cfg.DBPath())
	if err != nil {
		fmt.Printf(" (OPEN FAILED: %s)\n", err)
	} else {
		defer db.Close()
		if err := db.Init(context.Background()); err != nil {
			fmt.Printf(" (INIT FAILED: %s)\n", err)
		} else {
			fmt.Println(" (OK)")
		}
	}

	fmt.Println("\n  Providers:")
	printProvider("primary", cfg.Providers.Primary)
	printProvider("secondary", cfg.Providers.Secondary)

	fmt.Println("\n  Team:")
	for _, role := range cfg.Team.Roles {
		fmt.Printf("    %s\n", role)
	}
	if cfg.Dashboard.Enabled {
		fmt.Printf("\n  Dashboard: %s\n", cfg.Dashboard.Addr)
	} else {
		fmt.Println("\n  Dashboard: disabled")
	}
}

func printProvider(name string, p config.ProviderConfig) {
	if !p.Configured() {
		fmt.Printf("    %-10s not configured\n", name+":")
		return
	}
	fmt.Printf("    %-10s %s (model %s)\n", name+":", p.BaseURL, p.Model)
}
