// Command treeckpt inspects and maintains checkpoint directories.
package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
)

// CLI is the root command and its global flags.
type CLI struct {
	Config  string   `short:"c" help:"Configuration file (YAML or JSON)." type:"path"`
	EnvFile []string `name:"env-file" help:"Dotenv files with TREECKPT_* overrides." default:".env"`
	Root    string   `short:"r" help:"Checkpoint root. Overrides the root config key."`
	Storage string   `help:"Storage URI (file://, sqlite://path, memory://). Overrides the storage config key."`
	Verbose bool     `short:"v" help:"Enable verbose logging."`

	List    ListCmd    `cmd:"" help:"List committed checkpoints."`
	Inspect InspectCmd `cmd:"" help:"Show the manifest and leaves of a checkpoint."`
	Verify  VerifyCmd  `cmd:"" help:"Check every artifact of one or all checkpoints against its checksum."`
	Prune   PruneCmd   `cmd:"" help:"Apply the retention policy and remove incomplete writes."`
	Wait    WaitCmd    `cmd:"" help:"Block until a checkpoint newer than a step is committed."`

	out io.Writer `kong:"-"`
}

// AfterApply sets up logging once flags are parsed.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

func newParser(cli *CLI) (*kong.Kong, error) {
	return kong.New(cli,
		kong.Name("treeckpt"),
		kong.Description("Inspect and maintain step-indexed checkpoint directories."),
		kong.UsageOnError(),
	)
}

func main() {
	cli := &CLI{out: os.Stdout}
	parser, err := newParser(cli)
	if err != nil {
		panic(err)
	}
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)
	ctx.FatalIfErrorf(ctx.Run(cli))
}
