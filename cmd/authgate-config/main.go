package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/propelio/authgate"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "convert":
		handleConvert()
	case "validate":
		handleValidate()
	case "stats":
		handleStats()
	case "apply":
		handleApply()
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("authgate-config - Configuration tool for authgate")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  authgate-config convert <input> <output>  - Convert between formats")
	fmt.Println("  authgate-config validate <file>           - Validate configuration")
	fmt.Println("  authgate-config stats <file>              - Show configuration statistics")
	fmt.Println("  authgate-config apply <file>              - Apply configuration to engine")
	fmt.Println()
	fmt.Println("Supported formats: .authgate, .dsl, .yaml, .yml, .json, .bin")
}

func handleConvert() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: authgate-config convert <input> <output>")
		os.Exit(1)
	}

	inputFile := os.Args[2]
	outputFile := os.Args[3]

	cfg, err := loadConfig(inputFile)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := saveConfig(cfg, outputFile); err != nil {
		fmt.Printf("Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Converted %s -> %s\n", inputFile, outputFile)

	inStat, _ := os.Stat(inputFile)
	outStat, _ := os.Stat(outputFile)
	if inStat != nil && outStat != nil {
		reduction := (1 - float64(outStat.Size())/float64(inStat.Size())) * 100
		if reduction > 0 {
			fmt.Printf("Size reduced by %.1f%% (%d -> %d bytes)\n",
				reduction, inStat.Size(), outStat.Size())
		} else {
			fmt.Printf("Size increased by %.1f%% (%d -> %d bytes)\n",
				-reduction, inStat.Size(), outStat.Size())
		}
	}
}

func handleValidate() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: authgate-config validate <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := loadConfig(filename)
	if err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  Version: %d\n", cfg.Version)
	fmt.Printf("  Catalog: %d\n", len(cfg.Catalog))
	fmt.Printf("  Roles: %d\n", len(cfg.Roles))
	fmt.Printf("  Assignments: %d\n", len(cfg.Assignments))
	fmt.Printf("  Manifests: %d\n", len(cfg.Manifests))
	fmt.Printf("  Subscriptions: %d\n", len(cfg.Subscriptions))
}

func handleStats() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: authgate-config stats <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := loadConfig(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	stat, _ := os.Stat(filename)

	fmt.Println("Configuration Statistics")
	fmt.Println("========================")
	if stat != nil {
		fmt.Printf("File size: %d bytes\n", stat.Size())
	}
	fmt.Printf("Version: %d\n", cfg.Version)
	fmt.Println()

	fmt.Println("Components:")
	fmt.Printf("  Catalog:       %d\n", len(cfg.Catalog))
	fmt.Printf("  Roles:         %d\n", len(cfg.Roles))
	fmt.Printf("  Assignments:   %d\n", len(cfg.Assignments))
	fmt.Printf("  Manifests:     %d\n", len(cfg.Manifests))
	fmt.Printf("  Subscriptions: %d\n", len(cfg.Subscriptions))
	fmt.Println()

	if len(cfg.Roles) > 0 {
		totalGrants := 0
		withheld := 0
		systemRoles := 0
		for _, r := range cfg.Roles {
			totalGrants += len(r.Grants)
			for _, g := range r.Grants {
				if !g.Granted {
					withheld++
				}
			}
			if r.IsSystemRole() {
				systemRoles++
			}
		}
		fmt.Println("Role Details:")
		fmt.Printf("  System roles:     %d\n", systemRoles)
		fmt.Printf("  Total grants:     %d\n", totalGrants)
		fmt.Printf("  Withheld grants:  %d\n", withheld)
		fmt.Printf("  Avg per role:     %.1f\n", float64(totalGrants)/float64(len(cfg.Roles)))
		fmt.Println()
	}

	if len(cfg.Manifests) > 0 {
		system := 0
		for _, m := range cfg.Manifests {
			if m.IsSystemModule {
				system++
			}
		}
		fmt.Println("Module Details:")
		fmt.Printf("  System modules: %d\n", system)
		fmt.Println()
	}

	if len(cfg.Conditions) > 0 {
		fmt.Println("Conditions:")
		for perm, names := range cfg.Conditions {
			fmt.Printf("  %s -> %s\n", perm, strings.Join(names, ","))
		}
		fmt.Println()
	}

	fmt.Println("Engine Configuration:")
	fmt.Printf("  Permission cache TTL:  %dms\n", cfg.Engine.PermissionCacheTTL)
	fmt.Printf("  Ristretto counters:    %d\n", cfg.Engine.RistrettoNumCounter)
	fmt.Printf("  Ristretto max cost:    %d\n", cfg.Engine.RistrettoMaxCost)
	fmt.Printf("  Ristretto buffer:      %d\n", cfg.Engine.RistrettoBuffer)
}

func handleApply() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: authgate-config apply <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := loadConfig(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	engine, err := authgate.NewEngine(
		authgate.NewMemoryCatalogStore(),
		authgate.NewMemoryRoleStore(),
		authgate.NewMemoryAssignmentStore(),
		authgate.NewMemoryModuleStore(),
	)
	if err != nil {
		fmt.Printf("Error creating engine: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := engine.ApplyConfig(ctx, cfg); err != nil {
		fmt.Printf("Error applying config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Configuration applied successfully\n")
	fmt.Printf("  Permissions loaded: %d\n", len(cfg.Catalog))
	fmt.Printf("  Roles loaded: %d\n", len(cfg.Roles))
	fmt.Printf("  Assignments loaded: %d\n", len(cfg.Assignments))
}

func loadConfig(filename string) (*authgate.Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".authgate", ".dsl":
		parser := authgate.NewDSLParser()
		return parser.Parse(data)
	case ".yaml", ".yml":
		loader := authgate.NewConfigLoader()
		return loader.LoadYAML(data)
	case ".json":
		loader := authgate.NewConfigLoader()
		return loader.LoadJSON(data)
	case ".bin":
		loader := authgate.NewConfigLoader()
		return loader.LoadBinary(data)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}
}

func saveConfig(cfg *authgate.Config, filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))

	var data []byte
	var err error

	switch ext {
	case ".yaml", ".yml":
		data, err = cfg.ToYAML()
	case ".json":
		data, err = cfg.ToJSON()
	case ".bin":
		data, err = authgate.EncodeBinaryConfig(cfg)
	case ".authgate", ".dsl":
		encoder := authgate.NewDSLEncoder()
		data, err = encoder.Encode(cfg)
	default:
		return fmt.Errorf("unsupported file format: %s", ext)
	}

	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
