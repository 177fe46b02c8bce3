package weights

import (
	"bytes"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testValues fills every tensor of topo with deterministic pseudo-random
// values. Running variances get non-negative values, as a real training run
// produces.
func testValues(t *testing.T, topo *Topology, seed int64) [][]float32 {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	values := make([][]float32, topo.NumTensors())
	for i, desc := range topo.Tensors {
		v := make([]float32, desc.NativeShape.NumElements())
		for j := range v {
			switch desc.Role {
			case NormRunningVariance:
				v[j] = rng.Float32() * 2
			default:
				v[j] = rng.Float32()*2 - 1
			}
		}
		values[i] = v
	}
	return values
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	topo, err := NewTopology(4, 1)
	require.NoError(t, err)
	require.Equal(t, 26, topo.NumTensors())

	original := testValues(t, topo, 11)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, topo, original))

	decoded, err := Decode(&buf, topo)
	require.NoError(t, err)
	require.Len(t, decoded, topo.NumTensors())

	for i := range original {
		require.Len(t, decoded[i], len(original[i]), "tensor %d", i)
		for j := range original[i] {
			assert.InDelta(t, original[i][j], decoded[i][j], 1e-5,
				"tensor %d (%s) element %d", i, topo.Tensors[i].Role, j)
		}
	}
}

func TestEncodeLeavesInputUntouched(t *testing.T) {
	topo, err := NewTopology(2, 0)
	require.NoError(t, err)

	values := testValues(t, topo, 5)
	snapshot := make([][]float32, len(values))
	for i, v := range values {
		snapshot[i] = append([]float32(nil), v...)
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, topo, values))
	assert.Equal(t, snapshot, values)
}

func TestEncodeFileStructure(t *testing.T) {
	topo, err := NewTopology(1, 0)
	require.NoError(t, err)

	values := testValues(t, topo, 2)
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, topo, values))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 1+18)
	assert.Equal(t, "2", lines[0])

	for i, desc := range topo.Tensors {
		tokens := strings.Fields(lines[i+1])
		assert.Len(t, tokens, desc.ExchangeShape().NumElements(), "tensor %d (%s)", i, desc.Role)
	}
}

// TestEncodeAppliesNoProgressCompensation reads the input kernel line back
// as text: weights on input channel 109 must be written shrunk by 99, every
// other channel verbatim.
func TestEncodeAppliesNoProgressCompensation(t *testing.T) {
	topo, err := NewTopology(1, 0)
	require.NoError(t, err)

	values := testValues(t, topo, 9)
	kernel := values[0]
	for i := range kernel {
		kernel[i] = 1
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, topo, values))

	lines := strings.Split(buf.String(), "\n")
	tokens := strings.Fields(lines[1])
	require.Len(t, tokens, 1*InputPlanes*3*3)

	area := 3 * 3
	for i, tok := range tokens {
		v, perr := strconv.ParseFloat(tok, 32)
		require.NoError(t, perr)
		if (i/area)%InputPlanes == 109 {
			assert.InDelta(t, 1.0/99.0, v, 1e-9, "token %d", i)
		} else {
			assert.Equal(t, 1.0, v, "token %d", i)
		}
	}
}

// TestEncodeFoldsShift checks the legacy bias encoding in the written file:
// the shift line carries shift*sqrt(variance+epsilon) while the mean and
// variance lines stay verbatim.
func TestEncodeFoldsShift(t *testing.T) {
	topo, err := NewTopology(2, 0)
	require.NoError(t, err)

	values := testValues(t, topo, 4)
	values[1] = []float32{0.5, -2}  // shift
	values[2] = []float32{0.1, 0.2} // running mean
	values[3] = []float32{4, 0.25}  // running variance

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, topo, values))

	lines := strings.Split(buf.String(), "\n")
	shiftToks := strings.Fields(lines[2])
	meanToks := strings.Fields(lines[3])
	varToks := strings.Fields(lines[4])

	wantShift := []float64{0.5 * math.Sqrt(4 + Epsilon), -2 * math.Sqrt(0.25 + Epsilon)}
	for i, tok := range shiftToks {
		v, perr := strconv.ParseFloat(tok, 32)
		require.NoError(t, perr)
		assert.InDelta(t, wantShift[i], v, 1e-6)
	}
	assert.Equal(t, []string{"0.1", "0.2"}, meanToks)
	assert.Equal(t, []string{"4", "0.25"}, varToks)
}

func TestDecodeRejectsWrongVersion(t *testing.T) {
	topo, err := NewTopology(1, 0)
	require.NoError(t, err)

	for _, version := range []string{"1", "3", "v2", ""} {
		_, derr := Decode(strings.NewReader(version+"\n1 2 3\n"), topo)
		require.Error(t, derr, "version %q", version)
		var ferr *FormatError
		require.ErrorAs(t, derr, &ferr, "version %q", version)
		assert.Equal(t, 1, ferr.Line)
		assert.Equal(t, -1, ferr.Tensor)
	}
}

func TestDecodeRejectsTruncatedFile(t *testing.T) {
	topo, err := NewTopology(1, 0)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, topo, testValues(t, topo, 13)))

	// Drop the final line (the value output bias).
	text := buf.String()
	text = strings.TrimRight(text, "\n")
	text = text[:strings.LastIndex(text, "\n")+1]

	_, derr := Decode(strings.NewReader(text), topo)
	require.Error(t, derr)
	var ferr *FormatError
	require.ErrorAs(t, derr, &ferr)
	assert.ErrorIs(t, derr, ErrTruncated)
	assert.Equal(t, 17, ferr.Tensor)
}

func TestDecodeRejectsWrongTokenCount(t *testing.T) {
	topo, err := NewTopology(1, 0)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, topo, testValues(t, topo, 13)))

	// The input-block shift (tensor 1, line 3) has one filter, one value;
	// give it two.
	lines := strings.Split(buf.String(), "\n")
	lines[2] += " 0.5"

	_, derr := Decode(strings.NewReader(strings.Join(lines, "\n")), topo)
	var ferr *FormatError
	require.ErrorAs(t, derr, &ferr)
	assert.Equal(t, 1, ferr.Tensor)
	assert.Equal(t, 3, ferr.Line)
}

func TestDecodeRejectsBadToken(t *testing.T) {
	topo, err := NewTopology(1, 0)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, topo, testValues(t, topo, 13)))

	lines := strings.Split(buf.String(), "\n")
	lines[3] = "bogus"

	_, derr := Decode(strings.NewReader(strings.Join(lines, "\n")), topo)
	var ferr *FormatError
	require.ErrorAs(t, derr, &ferr)
	assert.Equal(t, 2, ferr.Tensor)
}

func TestDecodeRejectsTrailingData(t *testing.T) {
	topo, err := NewTopology(1, 0)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, topo, testValues(t, topo, 13)))
	buf.WriteString("0.5 0.5\n")

	_, derr := Decode(&buf, topo)
	require.ErrorIs(t, derr, ErrTrailingData)
}

// TestHandBuiltFileRoundTrip builds the 18-line minimal file by hand and
// checks parse -> serialize -> parse reproduces the same numeric content.
func TestHandBuiltFileRoundTrip(t *testing.T) {
	topo, err := NewTopology(1, 0)
	require.NoError(t, err)
	require.Equal(t, 18, topo.NumTensors())

	var sb strings.Builder
	sb.WriteString("2\n")
	for i, desc := range topo.Tensors {
		n := desc.ExchangeShape().NumElements()
		tokens := make([]string, n)
		for j := 0; j < n; j++ {
			// Distinct, exactly representable values; variances stay
			// positive because all values here are.
			tokens[j] = strconv.FormatFloat(float64(1+(i+j)%7)*0.25, 'g', -1, 32)
		}
		sb.WriteString(strings.Join(tokens, " "))
		if i < topo.NumTensors()-1 {
			sb.WriteString("\n") // original writers leave the last line unterminated
		}
	}

	first, err := Decode(strings.NewReader(sb.String()), topo)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, topo, first))
	second, err := Decode(&buf, topo)
	require.NoError(t, err)

	for i := range first {
		require.Len(t, second[i], len(first[i]), "tensor %d", i)
		for j := range first[i] {
			assert.InDelta(t, first[i][j], second[i][j], 1e-6, "tensor %d element %d", i, j)
		}
	}
}

func TestDecodeAcceptsUnterminatedFinalLine(t *testing.T) {
	topo, err := NewTopology(1, 0)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, topo, testValues(t, topo, 21)))

	text := strings.TrimRight(buf.String(), "\n")
	_, derr := Decode(strings.NewReader(text), topo)
	assert.NoError(t, derr)
}
