package codegen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Runner launches an external kernel generator.
type Runner struct {
	// Argv is the command prefix; the order, mode and file arguments are
	// appended.
	Argv []string
}

// Generate runs the generator and waits for it to exit successfully.
func (r Runner) Generate(ctx context.Context, color int, mode, colorFile, outFile string) error {
	if len(r.Argv) == 0 {
		return errors.New("no code generator command configured")
	}
	args := append(append([]string(nil), r.Argv[1:]...),
		"-order", strconv.Itoa(color), mode, colorFile, outFile)
	cmd := exec.CommandContext(ctx, r.Argv[0], args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(out.String())
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", r.Argv[0], err, msg)
		}
		return fmt.Errorf("%s: %w", r.Argv[0], err)
	}
	return nil
}
