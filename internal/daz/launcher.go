package daz

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Studio script names shipped alongside the binary.
const (
	scriptListProducts = "ListProductsMetadataSA.dsa"
	scriptOpenProduct  = "OpenProductInContentLibrarySA.dsa"
)

// Launcher runs DAZ Studio scripts through the Studio executable.
type Launcher struct {
	studioExe  string
	scriptsDir string
}

// NewLauncher creates a launcher for the given Studio executable and script
// directory.
func NewLauncher(studioExe, scriptsDir string) (*Launcher, error) {
	if studioExe == "" {
		return nil, fmt.Errorf("studio executable path is not configured")
	}
	if _, err := os.Stat(studioExe); err != nil {
		return nil, fmt.Errorf("studio executable not found at %s: %w", studioExe, err)
	}

	return &Launcher{studioExe: studioExe, scriptsDir: scriptsDir}, nil
}

// ExportProducts runs the metadata listing script, writing the library
// export to outPath. Products changed since the checkpoint string are
// included; an empty checkpoint exports everything.
func (l *Launcher) ExportProducts(ctx context.Context, outPath, checkpoint string) error {
	return l.runScript(ctx, scriptListProducts, outPath, checkpoint)
}

// OpenProduct opens a product in Studio's content library pane.
func (l *Launcher) OpenProduct(ctx context.Context, sku string) error {
	if sku == "" {
		return fmt.Errorf("sku cannot be empty")
	}
	return l.runScript(ctx, scriptOpenProduct, sku)
}

// runScript invokes the Studio executable with the script and its
// arguments. Studio takes each argument as a -scriptArg pair before the
// script path.
func (l *Launcher) runScript(ctx context.Context, scriptName string, args ...string) error {
	scriptPath := filepath.Join(l.scriptsDir, scriptName)
	if _, err := os.Stat(scriptPath); err != nil {
		return fmt.Errorf("studio script not found at %s: %w", scriptPath, err)
	}

	cmdArgs := make([]string, 0, 2*len(args)+1)
	for _, arg := range args {
		cmdArgs = append(cmdArgs, "-scriptArg", arg)
	}
	cmdArgs = append(cmdArgs, scriptPath)

	cmd := exec.CommandContext(ctx, l.studioExe, cmdArgs...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("studio script %s failed: %w (output: %s)", scriptName, err, string(output))
	}

	return nil
}
