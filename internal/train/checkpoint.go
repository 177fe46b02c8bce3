package train

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/ganeshkrishnan1/lczero-training/internal/nn"
	"github.com/ganeshkrishnan1/lczero-training/internal/optim"
)

// Native checkpoint format, used to resume a run with optimizer state intact.
// The exchange text format carries network weights only; momentum buffers and
// the step counter live here.
//
//	[4 bytes: magic "LCCK"]
//	[4 bytes: version (uint32 LE)]
//	[8 bytes: header size (uint64 LE)]
//	[header: JSON metadata]
//	[data: float32 LE, network tensors in topology order, then velocities]
//	[32 bytes: SHA-256 of everything above]
const (
	checkpointMagic   = "LCCK"
	checkpointVersion = uint32(1)

	maxCheckpointHeader = 1 << 20
)

var (
	// ErrInvalidMagic means the file is not a checkpoint at all.
	ErrInvalidMagic = errors.New("invalid checkpoint magic")
	// ErrChecksumMismatch means the checkpoint is corrupted.
	ErrChecksumMismatch = errors.New("checkpoint checksum mismatch")
	// ErrCheckpointVersion means the checkpoint was written by an
	// incompatible version of this tool.
	ErrCheckpointVersion = errors.New("unsupported checkpoint version")
)

type checkpointHeader struct {
	Name           string `json:"name"`
	Step           int    `json:"step"`
	Filters        int    `json:"filters"`
	ResidualBlocks int    `json:"residual_blocks"`
	TensorCount    int    `json:"tensor_count"`
	VelocityCount  int    `json:"velocity_count"`
	SavedAt        string `json:"saved_at"`
}

// SaveCheckpoint writes network weights, optimizer velocities and the step
// counter to path. The file is written whole to a temp file and renamed, so
// an existing checkpoint is never left half-overwritten.
func SaveCheckpoint(path, name string, step int, net *nn.Network, opt *optim.SGD) error {
	tensors := net.Tensors()
	velocities := opt.Velocities()

	hdr := checkpointHeader{
		Name:           name,
		Step:           step,
		Filters:        net.Topology().Filters,
		ResidualBlocks: net.Topology().Blocks,
		TensorCount:    len(tensors),
		VelocityCount:  len(velocities),
		SavedAt:        time.Now().UTC().Format(time.RFC3339),
	}
	hdrJSON, err := json.Marshal(hdr)
	if err != nil {
		return errors.Wrap(err, "marshaling checkpoint header")
	}

	var buf bytes.Buffer
	buf.WriteString(checkpointMagic)
	var scratch [8]byte
	binary.LittleEndian.PutUint32(scratch[:4], checkpointVersion)
	buf.Write(scratch[:4])
	binary.LittleEndian.PutUint64(scratch[:], uint64(len(hdrJSON)))
	buf.Write(scratch[:])
	buf.Write(hdrJSON)

	for _, t := range tensors {
		writeFloats(&buf, t)
	}
	for _, v := range velocities {
		writeFloats(&buf, v.Data())
	}

	sum := sha256.Sum256(buf.Bytes())
	buf.Write(sum[:])

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "creating checkpoint temp file")
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "writing checkpoint %s", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "closing checkpoint %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "renaming checkpoint into %s", path)
	}
	return nil
}

// RestoreCheckpoint loads a checkpoint into the network and optimizer and
// returns the step counter at which it was saved. The network and optimizer
// are untouched unless the whole file verifies.
func RestoreCheckpoint(path string, net *nn.Network, opt *optim.SGD) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.Wrap(err, "reading checkpoint")
	}
	if len(raw) < len(checkpointMagic)+4+8+sha256.Size {
		return 0, errors.Errorf("checkpoint %s: file too short (%d bytes)", path, len(raw))
	}

	body, stored := raw[:len(raw)-sha256.Size], raw[len(raw)-sha256.Size:]
	if sum := sha256.Sum256(body); !bytes.Equal(sum[:], stored) {
		return 0, errors.Wrapf(ErrChecksumMismatch, "checkpoint %s", path)
	}

	if string(body[:4]) != checkpointMagic {
		return 0, errors.Wrapf(ErrInvalidMagic, "checkpoint %s", path)
	}
	if v := binary.LittleEndian.Uint32(body[4:8]); v != checkpointVersion {
		return 0, errors.Wrapf(ErrCheckpointVersion, "checkpoint %s: got %d, expected %d", path, v, checkpointVersion)
	}
	hdrSize := binary.LittleEndian.Uint64(body[8:16])
	if hdrSize > maxCheckpointHeader || 16+hdrSize > uint64(len(body)) {
		return 0, errors.Errorf("checkpoint %s: header size %d out of range", path, hdrSize)
	}

	var hdr checkpointHeader
	if err := json.Unmarshal(body[16:16+hdrSize], &hdr); err != nil {
		return 0, errors.Wrapf(err, "checkpoint %s: parsing header", path)
	}
	topo := net.Topology()
	if hdr.Filters != topo.Filters || hdr.ResidualBlocks != topo.Blocks {
		return 0, errors.Errorf("checkpoint %s: saved for %d filters / %d blocks, network has %d / %d",
			path, hdr.Filters, hdr.ResidualBlocks, topo.Filters, topo.Blocks)
	}

	tensors := net.Tensors()
	velocities := opt.Velocities()
	if hdr.TensorCount != len(tensors) || hdr.VelocityCount != len(velocities) {
		return 0, errors.Errorf("checkpoint %s: %d tensors / %d velocities, expected %d / %d",
			path, hdr.TensorCount, hdr.VelocityCount, len(tensors), len(velocities))
	}

	var total int
	for _, t := range tensors {
		total += len(t)
	}
	for _, v := range velocities {
		total += v.NumElements()
	}
	payload := body[16+hdrSize:]
	if len(payload) != 4*total {
		return 0, errors.Errorf("checkpoint %s: %d data bytes, expected %d", path, len(payload), 4*total)
	}

	// Decode into fresh buffers first; the network and velocities are only
	// touched once everything has parsed.
	decoded := make([][]float32, 0, len(tensors)+len(velocities))
	off := 0
	for _, t := range tensors {
		decoded = append(decoded, readFloats(payload[off:off+4*len(t)]))
		off += 4 * len(t)
	}
	velStart := len(tensors)
	for _, v := range velocities {
		n := v.NumElements()
		decoded = append(decoded, readFloats(payload[off:off+4*n]))
		off += 4 * n
	}

	if err := net.SetTensors(decoded[:velStart]); err != nil {
		return 0, errors.Wrapf(err, "checkpoint %s", path)
	}
	for i, v := range velocities {
		copy(v.Data(), decoded[velStart+i])
	}
	return hdr.Step, nil
}

func writeFloats(buf *bytes.Buffer, vals []float32) {
	var b [4]byte
	for _, v := range vals {
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
		buf.Write(b[:])
	}
}

func readFloats(raw []byte) []float32 {
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return out
}
