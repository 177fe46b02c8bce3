package weights

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// FormatVersion is the single supported exchange file version.
const FormatVersion = 2

// Encode writes the weight file for topo to w: the version on its own line,
// then one line per tensor in topology order, each holding the tensor's
// exchange-layout values as space-separated decimals. Values are formatted
// with the shortest representation that round-trips a float32.
//
// values holds one native-layout slice per topology tensor, in topology
// order. A count or length mismatch is an invariant violation: the caller is
// the training engine, whose tensors are built from the same topology.
//
// Encode is pure over (topo, values); it performs no I/O beyond w and leaves
// values untouched.
func Encode(w io.Writer, topo *Topology, values [][]float32) error {
	if len(values) != topo.NumTensors() {
		invariant("encode: got %d tensors, topology has %d", len(values), topo.NumTensors())
	}

	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "%d\n", FormatVersion); err != nil {
		return err
	}

	var buf []byte
	for i, desc := range topo.Tensors {
		if len(values[i]) != desc.NativeShape.NumElements() {
			invariant("encode: tensor %d (%s) has %d values, native shape %v needs %d",
				i, desc.Role, len(values[i]), desc.NativeShape, desc.NativeShape.NumElements())
		}

		work := encodeTensor(topo, values, i)

		buf = buf[:0]
		for j, v := range work {
			if j > 0 {
				buf = append(buf, ' ')
			}
			buf = strconv.AppendFloat(buf, float64(v), 'g', -1, 32)
		}
		buf = append(buf, '\n')
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// encodeTensor produces the exchange-layout values for tensor i: layout
// conversion, then the shift fold, then the no-progress compensation on the
// input convolution.
func encodeTensor(topo *Topology, values [][]float32, i int) []float32 {
	desc := topo.Tensors[i]

	if desc.Role == NormShift {
		return FoldShift(values[i], varianceFor(topo, values, i))
	}

	work := ToExchange(desc.Role, desc.NativeShape, values[i])
	if desc.Role == ConvKernel && i == 0 {
		CompensateExport(work, desc.ExchangeShape())
	}
	return work
}

// varianceFor returns the running variance paired with the shift at slot i.
// The block layout fixes it two slots later.
func varianceFor(topo *Topology, values [][]float32, i int) []float32 {
	if i+2 >= topo.NumTensors() || topo.Tensors[i+2].Role != NormRunningVariance {
		invariant("tensor %d (%s) has no running variance at slot %d", i, topo.Tensors[i].Role, i+2)
	}
	return values[i+2]
}

// Decode parses a weight file for topo from r and returns one native-layout
// value slice per topology tensor, in topology order.
//
// Parsing is all-or-nothing: the version must be FormatVersion, there must
// be exactly one line per tensor with exactly the tensor's exchange-shape
// element count of parsable tokens, and nothing may follow the last line.
// Any deviation returns a FormatError naming the offending line and tensor
// slot, and no tensors are returned.
func Decode(r io.Reader, topo *Topology) ([][]float32, error) {
	br := bufio.NewReader(r)

	line, eof, err := readLine(br)
	if err != nil {
		return nil, err
	}
	version, convErr := strconv.Atoi(strings.TrimSpace(line))
	if convErr != nil {
		return nil, &FormatError{Line: 1, Tensor: -1, Reason: "unreadable version", Err: convErr}
	}
	if version != FormatVersion {
		return nil, &FormatError{
			Line: 1, Tensor: -1,
			Reason: fmt.Sprintf("version %d, only %d is supported", version, FormatVersion),
			Err:    ErrUnsupportedVersion,
		}
	}

	n := topo.NumTensors()
	exchange := make([][]float32, n)
	for i := 0; i < n; i++ {
		lineNo := i + 2
		if eof {
			return nil, &FormatError{
				Line: lineNo, Tensor: i,
				Reason: fmt.Sprintf("file truncated: found %d of %d tensors", i, n),
				Err:    ErrTruncated,
			}
		}
		line, eof, err = readLine(br)
		if err != nil {
			return nil, err
		}
		if eof && strings.TrimSpace(line) == "" {
			return nil, &FormatError{
				Line: lineNo, Tensor: i,
				Reason: fmt.Sprintf("file truncated: found %d of %d tensors", i, n),
				Err:    ErrTruncated,
			}
		}

		values, ferr := parseTensorLine(line, topo.Tensors[i], i, lineNo)
		if ferr != nil {
			return nil, ferr
		}
		exchange[i] = values
	}

	// Exactly one line per tensor: anything beyond whitespace is an error.
	for !eof {
		line, eof, err = readLine(br)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(line) != "" {
			return nil, &FormatError{
				Line: n + 2, Tensor: -1,
				Reason: fmt.Sprintf("expected %d tensors, file has more", n),
				Err:    ErrTrailingData,
			}
		}
	}

	// Structure is valid; undo compensation, folding and layout in that
	// order so every tensor comes back in its native representation.
	native := make([][]float32, n)
	for i, desc := range topo.Tensors {
		if desc.Role == NormShift {
			native[i] = UnfoldShift(exchange[i], varianceFor(topo, exchange, i))
			continue
		}
		if desc.Role == ConvKernel && i == 0 {
			CompensateImport(exchange[i], desc.ExchangeShape())
		}
		native[i] = ToNative(desc.Role, desc.NativeShape, exchange[i])
	}
	return native, nil
}

// parseTensorLine splits and parses one tensor line, enforcing the expected
// token count.
func parseTensorLine(line string, desc Tensor, index, lineNo int) ([]float32, *FormatError) {
	want := desc.ExchangeShape().NumElements()
	tokens := strings.Fields(line)
	if len(tokens) != want {
		return nil, &FormatError{
			Line: lineNo, Tensor: index,
			Reason: fmt.Sprintf("%s has %d values, expected %d", desc.Role, len(tokens), want),
		}
	}

	values := make([]float32, want)
	for j, tok := range tokens {
		v, err := strconv.ParseFloat(tok, 32)
		if err != nil {
			return nil, &FormatError{
				Line: lineNo, Tensor: index,
				Reason: fmt.Sprintf("%s value %d is not a number", desc.Role, j),
				Err:    err,
			}
		}
		values[j] = float32(v)
	}
	return values, nil
}

// readLine reads up to the next newline. The final line may be
// unterminated; eof reports that the reader is exhausted.
func readLine(br *bufio.Reader) (line string, eof bool, err error) {
	line, err = br.ReadString('\n')
	if err == io.EOF {
		return line, true, nil
	}
	if err != nil {
		return "", false, err
	}
	return line, false, nil
}
