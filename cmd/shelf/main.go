package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"shelf/internal/app"
	"shelf/internal/config"
	"shelf/internal/shelf"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "AddLibrary", "Reset").
func newApp(operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config (run 'shelf config init' first): %w", err)
	}

	a, err := app.New(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

var rootCmd = &cobra.Command{
	Use:   "shelf",
	Short: "Local PDF library manager",
	Long: `shelf tracks directories of PDF files as named libraries, remembers them
across sessions, and re-verifies access to the files on every start.`,
}

// config command

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Database:    %s (%s)\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Shadow:      %s (%s)\n", cfg.Shadow.Type, cfg.Shadow.DataDir)
		fmt.Printf("Extensions:  %s\n", strings.Join(cfg.Library.Extensions, ", "))
		return nil
	},
}

// add command

var addCmd = &cobra.Command{
	Use:   "add [directory]",
	Short: "Create a library from a directory of PDFs",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("AddLibrary")
		if err != nil {
			return err
		}
		defer a.Close()

		var rawPath string
		if len(args) > 0 {
			rawPath = args[0]
		}

		lib, err := a.AddLibrary(cmd.Context(), rawPath)
		if errors.Is(err, shelf.ErrCancelled) {
			return nil
		}
		if errors.Is(err, shelf.ErrValidation) {
			return fmt.Errorf("nothing to add: %v", err)
		}
		if err != nil {
			return err
		}

		fmt.Printf("Added library %q (%d files)\n", lib.Name, len(lib.Files))
		fmt.Printf("ID: %s\n", lib.ID)
		return nil
	},
}

// list command

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List libraries and their current status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("LoadLibraries")
		if err != nil {
			return err
		}
		defer a.Close()

		libs, statuses := a.LoadLibraries(cmd.Context())
		if len(libs) == 0 {
			fmt.Println("No libraries. Use 'shelf add <directory>' to create one.")
			return nil
		}

		for _, lib := range libs {
			fmt.Printf("%s  %-20s  %3d files  [%s]\n",
				lib.ID, lib.Name, len(lib.Files), statuses[lib.ID])
			if msg, ok := lib.Metadata.GetString("errorMessage"); ok && lib.Metadata.GetBool("hasErrors") {
				fmt.Printf("    error: %s\n", msg)
			}
		}
		return nil
	},
}

// reconnect command

var reconnectCmd = &cobra.Command{
	Use:   "reconnect <id> [directory]",
	Short: "Re-point a disconnected library at its directory",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ReconnectLibrary")
		if err != nil {
			return err
		}
		defer a.Close()

		var rawPath string
		if len(args) > 1 {
			rawPath = args[1]
		}

		lib, err := a.ReconnectLibrary(cmd.Context(), args[0], rawPath)
		if errors.Is(err, shelf.ErrCancelled) {
			return nil
		}
		if errors.Is(err, shelf.ErrValidation) {
			return fmt.Errorf("library not reconnected: %v", err)
		}
		if err != nil {
			return err
		}

		fmt.Printf("Reconnected library %q (%d files)\n", lib.Name, len(lib.Files))
		return nil
	},
}

// remove command

var removeCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Delete a library from all storage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("DeleteLibrary")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DeleteLibrary(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed library %s\n", args[0])
		return nil
	},
}

// reset command

var resetForce bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Destroy and recreate all persisted library state",
	Long: `Reset permanently deletes the primary database and the shadow backup store.
Library directories and their PDF files are not touched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetForce {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return fmt.Errorf("refusing to reset without confirmation; use --force")
			}
			fmt.Fprint(os.Stderr, "This permanently deletes all recorded libraries. Type 'yes' to confirm: ")
			line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
			if strings.TrimSpace(line) != "yes" {
				fmt.Println("Aborted.")
				return nil
			}
		}

		a, err := newApp("Reset")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ResetStorage(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Storage reset.")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	resetCmd.Flags().BoolVar(&resetForce, "force", false, "skip the confirmation prompt")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(reconnectCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(resetCmd)
}
