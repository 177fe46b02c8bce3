// Command lczero-train trains the residual network and converts its weights
// to and from the version-2 text exchange format.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"k8s.io/klog/v2"

	"github.com/ganeshkrishnan1/lczero-training/internal/config"
	"github.com/ganeshkrishnan1/lczero-training/internal/data"
	"github.com/ganeshkrishnan1/lczero-training/internal/nn"
	"github.com/ganeshkrishnan1/lczero-training/internal/optim"
	"github.com/ganeshkrishnan1/lczero-training/internal/train"
	"github.com/ganeshkrishnan1/lczero-training/internal/weights"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: %s <command> [flags]

Commands:
  train    -config <yaml> [-restore <file>] [-samples <n>] [-seed <n>]
           Train per the YAML configuration. -restore accepts a native
           checkpoint (.ckpt) or an exchange-format weight file.
  export   -config <yaml> -checkpoint <ckpt> -o <file>
           Convert a native checkpoint to an exchange-format weight file.
  info     <file>
           Describe an exchange-format weight file.
`, os.Args[0])
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	var err error
	switch os.Args[1] {
	case "train":
		err = runTrain(os.Args[2:])
	case "export":
		err = runExport(os.Args[2:])
	case "info":
		err = runInfo(os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		klog.Errorf("%v", err)
		os.Exit(1)
	}
}

func runTrain(args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML run configuration")
	restore := fs.String("restore", "", "checkpoint (.ckpt) or exchange weight file to start from")
	samples := fs.Int("samples", 4096, "synthetic positions to generate")
	seed := fs.Int64("seed", 1, "random seed for weights and data")
	klog.InitFlags(fs)
	_ = fs.Parse(args)

	if *configPath == "" {
		return fmt.Errorf("train: -config is required")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(*seed))
	net, err := nn.NewNetwork(cfg.Model.Filters, cfg.Model.ResidualBlocks, rng)
	if err != nil {
		return err
	}

	// The self-play chunk pipeline lives outside this tool; train on
	// generated positions.
	source, err := data.NewDataset(data.Synthetic(*samples, rng), rng)
	if err != nil {
		return err
	}

	tr, err := train.New(cfg, net, source, nil)
	if err != nil {
		return err
	}
	if *restore != "" {
		if strings.HasSuffix(*restore, ".ckpt") {
			err = tr.Restore(*restore)
		} else {
			err = tr.RestoreExchange(*restore)
		}
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return tr.Run(ctx)
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML run configuration")
	checkpoint := fs.String("checkpoint", "", "native checkpoint to read")
	out := fs.String("o", "", "exchange-format output file")
	klog.InitFlags(fs)
	_ = fs.Parse(args)

	if *configPath == "" || *checkpoint == "" || *out == "" {
		return fmt.Errorf("export: -config, -checkpoint and -o are all required")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	net, err := nn.NewNetwork(cfg.Model.Filters, cfg.Model.ResidualBlocks, rand.New(rand.NewSource(1)))
	if err != nil {
		return err
	}
	opt := optim.NewSGD(net.Parameters(), optim.SGDConfig{
		LR:       cfg.Training.LRValues[0],
		Momentum: cfg.Training.Momentum,
	})
	step, err := train.RestoreCheckpoint(*checkpoint, net, opt)
	if err != nil {
		return err
	}

	if err := weights.Save(*out, net.Topology(), net.Tensors()); err != nil {
		return err
	}
	klog.Infof("exported step-%d weights to %s", step, *out)
	return nil
}

func runInfo(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("info: expected exactly one file argument")
	}
	path := args[0]

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	version, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return err
	}
	fmt.Printf("%s\n", path)
	fmt.Printf("  version: %s\n", strings.TrimSpace(version))

	var tokenCounts []int
	for {
		line, err := br.ReadString('\n')
		if line != "" && strings.TrimSpace(line) != "" {
			tokenCounts = append(tokenCounts, len(strings.Fields(line)))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	fmt.Printf("  tensors: %d\n", len(tokenCounts))

	if filters, blocks, ok := inferGeometry(tokenCounts); ok {
		fmt.Printf("  geometry: %d filters, %d residual blocks\n", filters, blocks)
	} else {
		fmt.Printf("  geometry: unrecognized\n")
	}
	for i, n := range tokenCounts {
		fmt.Printf("  tensor %2d: %d values\n", i, n)
	}
	return nil
}

// inferGeometry recovers (filters, blocks) from the per-tensor value counts
// and confirms the counts match that topology exactly.
func inferGeometry(tokenCounts []int) (filters, blocks int, ok bool) {
	if len(tokenCounts) == 0 {
		return 0, 0, false
	}
	blocks = (len(tokenCounts) - 18) / 8
	if blocks < 0 || len(tokenCounts) != 18+8*blocks {
		return 0, 0, false
	}
	// First tensor is the 3x3 input convolution over 112 planes.
	if tokenCounts[0]%(3*3*weights.InputPlanes) != 0 {
		return 0, 0, false
	}
	filters = tokenCounts[0] / (3 * 3 * weights.InputPlanes)

	topo, err := weights.NewTopology(filters, blocks)
	if err != nil {
		return 0, 0, false
	}
	for i, desc := range topo.Tensors {
		if tokenCounts[i] != desc.ExchangeShape().NumElements() {
			return 0, 0, false
		}
	}
	return filters, blocks, true
}
