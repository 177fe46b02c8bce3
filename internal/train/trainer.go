// Package train runs the training loop: stepping the network over
// minibatches, reporting averaged losses, evaluating on held-out batches and
// writing checkpoints plus exchange-format weight files.
package train

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	"github.com/ganeshkrishnan1/lczero-training/internal/config"
	"github.com/ganeshkrishnan1/lczero-training/internal/data"
	"github.com/ganeshkrishnan1/lczero-training/internal/nn"
	"github.com/ganeshkrishnan1/lczero-training/internal/optim"
	"github.com/ganeshkrishnan1/lczero-training/internal/weights"
)

// Trainer drives one training run described by a Config.
type Trainer struct {
	cfg      *config.Config
	net      *nn.Network
	opt      *optim.SGD
	schedule *optim.Schedule
	source   data.Source
	test     data.Source
	step     int

	// running sums since the last averaged report
	sumPolicy float64
	sumMSE    float64
	sumReg    float64
	batches   int
}

// New builds a trainer over the given network and batch sources. testSource
// may be nil, in which case evaluation draws from the training source.
func New(cfg *config.Config, net *nn.Network, source, testSource data.Source) (*Trainer, error) {
	schedule, err := optim.NewSchedule(cfg.Training.LRValues, cfg.Training.LRBoundaries)
	if err != nil {
		return nil, errors.Wrap(err, "building LR schedule")
	}
	if testSource == nil {
		testSource = source
	}
	opt := optim.NewSGD(net.Parameters(), optim.SGDConfig{
		LR:       schedule.At(0),
		Momentum: cfg.Training.Momentum,
	})
	return &Trainer{
		cfg:      cfg,
		net:      net,
		opt:      opt,
		schedule: schedule,
		source:   source,
		test:     testSource,
	}, nil
}

// Step returns the number of completed training steps.
func (t *Trainer) Step() int {
	return t.step
}

// RestoreExchange loads network weights from an exchange-format file before
// training starts; optimizer state starts fresh.
func (t *Trainer) RestoreExchange(path string) error {
	values, err := weights.Load(path, t.net.Topology())
	if err != nil {
		return err
	}
	if err := t.net.SetTensors(values); err != nil {
		return errors.Wrapf(err, "restoring weights from %s", path)
	}
	klog.Infof("restored network weights from %s", path)
	return nil
}

// Restore resumes from a native checkpoint: weights, velocities and step.
func (t *Trainer) Restore(path string) error {
	step, err := RestoreCheckpoint(path, t.net, t.opt)
	if err != nil {
		return err
	}
	t.step = step
	klog.Infof("restored checkpoint %s at step %d", path, step)
	return nil
}

// Run trains until total_steps, honoring ctx cancellation between steps.
func (t *Trainer) Run(ctx context.Context) error {
	tc := t.cfg.Training
	var paramCount int64
	for _, p := range t.net.Parameters() {
		paramCount += int64(p.Tensor().NumElements())
	}
	klog.Infof("training %s: %d filters, %d blocks, %s parameters, batch size %d",
		t.cfg.Name, t.cfg.Model.Filters, t.cfg.Model.ResidualBlocks,
		humanize.Comma(paramCount), tc.BatchSize)

	bar := progressbar.NewOptions(tc.TotalSteps-t.step,
		progressbar.OptionSetDescription(t.cfg.Name),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("steps"),
	)

	for t.step < tc.TotalSteps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.trainStep(); err != nil {
			return errors.Wrapf(err, "step %d", t.step+1)
		}
		t.step++
		_ = bar.Add(1)

		if tc.TrainAvgReportSteps > 0 && t.step%tc.TrainAvgReportSteps == 0 {
			t.reportTrainAverages()
		}
		if tc.TestSteps > 0 && t.step%tc.TestSteps == 0 {
			if err := t.evaluate(); err != nil {
				return err
			}
		}
		if tc.CheckpointSteps > 0 && t.step%tc.CheckpointSteps == 0 {
			if err := t.Checkpoint(); err != nil {
				return err
			}
		}
	}
	_ = bar.Finish()
	fmt.Println()

	// Final snapshot unless the last step already produced one.
	if tc.CheckpointSteps <= 0 || t.step%tc.CheckpointSteps != 0 {
		if err := t.Checkpoint(); err != nil {
			return err
		}
	}
	return nil
}

func (t *Trainer) trainStep() error {
	tc := t.cfg.Training

	batch, err := t.source.Next(tc.BatchSize)
	if err != nil {
		return errors.Wrap(err, "fetching batch")
	}

	t.opt.SetLR(t.schedule.At(t.step))
	t.net.ZeroGrad()

	policy, value := t.net.Forward(batch.Planes, true)
	policyLoss, gradPolicy := nn.SoftmaxCrossEntropy(policy, batch.Policy)
	mse, gradValue := nn.MeanSquaredError(value, batch.Value)
	reg := nn.Regularization(t.net.KernelParameters())

	scale(gradPolicy.Data(), tc.PolicyLossWeight)
	scale(gradValue.Data(), tc.ValueLossWeight)
	t.net.Backward(gradPolicy, gradValue)
	t.opt.Step()

	t.sumPolicy += float64(policyLoss)
	t.sumMSE += float64(mse)
	t.sumReg += float64(reg)
	t.batches++
	return nil
}

func (t *Trainer) reportTrainAverages() {
	if t.batches == 0 {
		return
	}
	n := float64(t.batches)
	// The value target spans [-1, 1]; dividing the MSE by 4 rescales it to
	// the [0, 1] range other engines report.
	klog.Infof("step %d lr=%g policy=%.5f mse=%.5f reg=%.5f total=%.5f",
		t.step, t.opt.LR(),
		t.sumPolicy/n, t.sumMSE/n/4, t.sumReg/n,
		(t.sumPolicy+t.sumMSE+t.sumReg)/n)
	t.sumPolicy, t.sumMSE, t.sumReg, t.batches = 0, 0, 0, 0
}

func (t *Trainer) evaluate() error {
	tc := t.cfg.Training

	var sumPolicy, sumMSE, sumAcc float64
	for i := 0; i < tc.TestBatches; i++ {
		batch, err := t.test.Next(tc.BatchSize)
		if err != nil {
			return errors.Wrap(err, "fetching test batch")
		}
		policy, value := t.net.Forward(batch.Planes, false)
		policyLoss, _ := nn.SoftmaxCrossEntropy(policy, batch.Policy)
		mse, _ := nn.MeanSquaredError(value, batch.Value)
		sumPolicy += float64(policyLoss)
		sumMSE += float64(mse)
		sumAcc += float64(nn.Accuracy(policy, batch.Policy))
	}
	n := float64(tc.TestBatches)
	klog.Infof("step %d test: policy=%.5f mse=%.5f accuracy=%.2f%%",
		t.step, sumPolicy/n, sumMSE/n/4, 100*sumAcc/n)
	return nil
}

// Checkpoint writes the native checkpoint and the exchange-format export for
// the current step: <path>/<name>-<step>.ckpt and <path>/<name>-<step>.txt.
func (t *Trainer) Checkpoint() error {
	base := fmt.Sprintf("%s-%d", t.cfg.Name, t.step)
	ckptPath := filepath.Join(t.cfg.Training.Path, base+".ckpt")
	exchangePath := filepath.Join(t.cfg.Training.Path, base+".txt")

	if err := SaveCheckpoint(ckptPath, t.cfg.Name, t.step, t.net, t.opt); err != nil {
		return err
	}
	if err := weights.Save(exchangePath, t.net.Topology(), t.net.Tensors()); err != nil {
		return err
	}
	klog.Infof("step %d: wrote %s and %s", t.step, ckptPath, exchangePath)
	return nil
}

func scale(vals []float32, factor float32) {
	if factor == 1 {
		return
	}
	for i := range vals {
		vals[i] *= factor
	}
}
