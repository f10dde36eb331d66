package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/randalmurphal/treeckpt/pkg/treeckpt"
	"github.com/randalmurphal/treeckpt/pkg/treeckpt/codec"
	"github.com/randalmurphal/treeckpt/pkg/treeckpt/config"
	ckerrors "github.com/randalmurphal/treeckpt/pkg/treeckpt/errors"
	"github.com/randalmurphal/treeckpt/pkg/treeckpt/storage"
)

// settings is the resolved configuration shared by every command.
type settings struct {
	root    string
	prefix  string
	manager treeckpt.Config
	backend storage.Backend
}

func (c *CLI) settings() (*settings, error) {
	cfg, err := config.Load(c.Config, c.EnvFile...)
	if err != nil {
		return nil, err
	}
	mcfg, err := config.ManagerConfig(cfg)
	if err != nil {
		return nil, err
	}
	// Tooling never creates roots or writes in the background.
	mcfg.Create = false
	mcfg.Async = false

	root := c.Root
	if root == "" {
		root = config.Root(cfg, "")
	}
	if root == "" {
		return nil, errors.New("no checkpoint root: pass --root or set root in the config")
	}

	uri := c.Storage
	if uri == "" {
		uri = config.Storage(cfg)
	}
	backend, err := storage.Open(uri)
	if err != nil {
		return nil, err
	}
	return &settings{root: root, prefix: mcfg.StepPrefix, manager: mcfg, backend: backend}, nil
}

func (s *settings) newCodec() *codec.Codec {
	return codec.New(s.backend)
}

func (s *settings) stepPath(step int64) string {
	return strings.TrimSuffix(s.root, "/") + "/" + treeckpt.StepDirName(s.prefix, step)
}

func (s *settings) close() {
	if err := s.backend.Close(); err != nil {
		slog.Warn("close storage", "error", err)
	}
}

// ListCmd prints one line per committed checkpoint.
type ListCmd struct{}

func (l *ListCmd) Run(root *CLI) error {
	s, err := root.settings()
	if err != nil {
		return err
	}
	defer s.close()

	records, err := treeckpt.List(s.backend, s.root, s.prefix)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintf(root.out, "no checkpoints under %s\n", s.root)
		return nil
	}

	cd := s.newCodec()
	w := tabwriter.NewWriter(root.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tSAVED\tLEAVES\tSIZE\tMETRICS")
	for _, r := range records {
		manifest, descs, err := cd.ReadDescriptors(r.Path)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n",
			r.Step, humanize.Time(r.Time), manifest.LeafCount,
			humanize.IBytes(uint64(storedSize(descs))), formatMetrics(r.Metrics))
	}
	return w.Flush()
}

// InspectCmd prints a checkpoint manifest.
type InspectCmd struct {
	Step int64 `arg:"" help:"Step to inspect."`
}

func (i *InspectCmd) Run(root *CLI) error {
	s, err := root.settings()
	if err != nil {
		return err
	}
	defer s.close()

	cd, p := s.newCodec(), s.stepPath(i.Step)
	committed, err := cd.IsCommitted(p)
	if err != nil {
		return err
	}
	if !committed {
		return ckerrors.NotFound("inspect", p)
	}
	manifest, descs, err := cd.ReadDescriptors(p)
	if err != nil {
		return err
	}

	fmt.Fprintf(root.out, "step:     %d\n", i.Step)
	fmt.Fprintf(root.out, "saved:    %s (%s)\n", manifest.CreatedAt.Format(time.RFC3339), humanize.Time(manifest.CreatedAt))
	fmt.Fprintf(root.out, "leaves:   %s\n", humanize.Comma(int64(manifest.LeafCount)))
	fmt.Fprintf(root.out, "size:     %s\n", humanize.IBytes(uint64(storedSize(descs))))
	if len(manifest.Metrics) > 0 {
		fmt.Fprintf(root.out, "metrics:  %s\n", formatMetrics(manifest.Metrics))
	}
	for _, k := range sortedKeys(manifest.Metadata) {
		fmt.Fprintf(root.out, "meta:     %s=%s\n", k, manifest.Metadata[k])
	}

	fmt.Fprintln(root.out)
	w := tabwriter.NewWriter(root.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tPATH\tKIND\tDTYPE\tSHAPE\tSIZE")
	for _, d := range descs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%v\t%s\n",
			d.Index, d.Path, d.Kind, d.DType, d.Shape, humanize.IBytes(uint64(d.Size)))
	}
	return w.Flush()
}

// VerifyCmd checks artifact checksums.
type VerifyCmd struct {
	Steps []int64 `arg:"" optional:"" help:"Steps to verify. All checkpoints when omitted."`
}

func (v *VerifyCmd) Run(root *CLI) error {
	s, err := root.settings()
	if err != nil {
		return err
	}
	defer s.close()

	var paths []string
	for _, step := range v.Steps {
		paths = append(paths, s.stepPath(step))
	}
	if len(v.Steps) == 0 {
		records, err := treeckpt.List(s.backend, s.root, s.prefix)
		if err != nil {
			return err
		}
		for _, r := range records {
			paths = append(paths, r.Path)
		}
	}

	cd := s.newCodec()
	failed := 0
	for _, p := range paths {
		if _, err := cd.Verify(p); err != nil {
			failed++
			fmt.Fprintf(root.out, "FAIL  %s: %v\n", p, err)
			continue
		}
		fmt.Fprintf(root.out, "ok    %s\n", p)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d checkpoints failed verification", failed, len(paths))
	}
	return nil
}

// PruneCmd opens the root as a manager, which removes incomplete writes,
// then applies the configured retention policy.
type PruneCmd struct {
	DryRun bool `name:"dry-run" help:"Print what would be deleted without deleting."`
}

func (p *PruneCmd) Run(root *CLI) error {
	s, err := root.settings()
	if err != nil {
		return err
	}
	defer s.close()

	if p.DryRun {
		records, err := treeckpt.List(s.backend, s.root, s.prefix)
		if err != nil {
			return err
		}
		for _, step := range treeckpt.PlanRetention(records, s.manager) {
			fmt.Fprintf(root.out, "would delete %s\n", s.stepPath(step))
		}
		return nil
	}

	mgr, err := treeckpt.New(s.root, s.manager,
		treeckpt.WithLogger(slog.Default()),
		treeckpt.WithBackend(s.backend),
	)
	if err != nil {
		return err
	}
	defer mgr.Close()

	deleted, err := mgr.Prune(context.Background())
	if err != nil {
		return err
	}
	for _, step := range deleted {
		fmt.Fprintf(root.out, "deleted %s\n", s.stepPath(step))
	}
	fmt.Fprintf(root.out, "%d checkpoints kept\n", len(mgr.Steps()))
	return nil
}

// WaitCmd blocks until a newer checkpoint is committed and prints its step.
type WaitCmd struct {
	After    int64         `help:"Wait for a step greater than this." default:"-1"`
	Timeout  time.Duration `help:"Give up after this long. Zero waits forever."`
	Interval time.Duration `help:"Rescan interval." default:"2s"`
}

func (w *WaitCmd) Run(root *CLI) error {
	s, err := root.settings()
	if err != nil {
		return err
	}
	defer s.close()
	if _, ok := s.backend.(*storage.FSBackend); !ok {
		return errors.New("wait only supports local filesystem storage")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if w.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, w.Timeout)
		defer cancelTimeout()
	}

	step, err := treeckpt.WaitForNewCheckpoint(ctx, s.root, s.prefix, w.After, w.Interval)
	if err != nil {
		return err
	}
	fmt.Fprintln(root.out, step)
	return nil
}

func storedSize(descs []codec.LeafDescriptor) int64 {
	var total int64
	for _, d := range descs {
		total += d.Size
	}
	return total
}

func formatMetrics(metrics map[string]float64) string {
	if len(metrics) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(metrics))
	for _, k := range sortedKeys(metrics) {
		parts = append(parts, fmt.Sprintf("%s=%s", k, humanize.FtoaWithDigits(metrics[k], 4)))
	}
	return strings.Join(parts, " ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
