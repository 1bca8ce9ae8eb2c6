package correlation

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/types"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultConfig(), nil, nil)
	require.NoError(t, err)
	return e
}

func corrRequest(op types.Operation, mode types.ExecutionMode, sameSource bool) *types.CorrelationRequest {
	groupA, groupB := "site-1", "site-1"
	if !sameSource {
		groupB = "site-2"
	}
	return &types.CorrelationRequest{
		RequestID: "req-1",
		Streams: []types.StreamRef{
			{StreamID: "s-a", BridgeID: "b-1", Domain: types.DomainAcoustic, SampleRate: 1000, SourceGroup: groupA},
			{StreamID: "s-b", BridgeID: "b-2", Domain: types.DomainVibration, SampleRate: 1000, SourceGroup: groupB},
		},
		Op:   op,
		Mode: mode,
	}
}

func sine(n int, cycles float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * cycles * float64(i) / float64(n))
	}
	return out
}

func noise(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.NormFloat64()
	}
	return out
}

func TestLocal_SelfCorrelationPeaksAtLagZero(t *testing.T) {
	e := testEngine(t)
	signal := sine(1024, 16)

	res, err := e.Compute(context.Background(),
		corrRequest(types.OpCrossCorr, types.ModeLocal, true),
		[][]float64{signal, signal})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, res.Peak, 1e-6)
	assert.Equal(t, 0, res.PeakLag)
	assert.Equal(t, types.ModeLocal, res.Mode)
	assert.Equal(t, uint32(1000), res.SampleRate)
}

func TestLocal_DetectsLag(t *testing.T) {
	e := testEngine(t)

	base := noise(2048, 3)
	delay := 17
	delayed := make([]float64, len(base))
	copy(delayed[delay:], base[:len(base)-delay])

	res, err := e.Compute(context.Background(),
		corrRequest(types.OpCrossCorr, types.ModeLocal, true),
		[][]float64{base, delayed})
	require.NoError(t, err)

	// The second stream trails the first, so the lag is positive.
	assert.Equal(t, delay, res.PeakLag)
	assert.Greater(t, res.Peak, 0.9)
}

func TestLocal_WhiteNoisePeakShrinksWithN(t *testing.T) {
	e := testEngine(t)

	peakAt := func(n int) float64 {
		res, err := e.Compute(context.Background(),
			corrRequest(types.OpCrossCorr, types.ModeLocal, true),
			[][]float64{noise(n, 11), noise(n, 99)})
		require.NoError(t, err)
		return res.Peak
	}

	small := peakAt(256)
	large := peakAt(16384)

	// Independent noise correlates at O(1/sqrt(N)).
	assert.Less(t, large, small)
	assert.Less(t, large, 0.1)
}

func TestLocal_DeadlineExceeded(t *testing.T) {
	e := testEngine(t)

	req := corrRequest(types.OpCrossCorr, types.ModeLocal, true)
	req.MaxLatency = time.Nanosecond

	_, err := e.Compute(context.Background(), req,
		[][]float64{noise(1<<16, 1), noise(1<<16, 2)})
	assert.ErrorIs(t, err, errors.ErrDeadlineExceeded)
}

func TestLocal_RejectsHeavyOperations(t *testing.T) {
	e := testEngine(t)

	_, err := e.Compute(context.Background(),
		corrRequest(types.OpCoherence, types.ModeLocal, true),
		[][]float64{sine(256, 4), sine(256, 4)})
	assert.ErrorIs(t, err, errors.ErrModeUnavailable)
}

func TestRemote_Coherence(t *testing.T) {
	e := testEngine(t)

	// A shared 16-cycle tone buried in independent noise shows coherence at
	// its bin, while pure noise pairs stay low.
	tone := sine(4096, 512)
	a := make([]float64, len(tone))
	b := make([]float64, len(tone))
	na, nb := noise(len(tone), 5), noise(len(tone), 6)
	for i := range tone {
		a[i] = tone[i] + 0.1*na[i]
		b[i] = tone[i] + 0.1*nb[i]
	}

	res, err := e.Compute(context.Background(),
		corrRequest(types.OpCoherence, types.ModeRemote, false),
		[][]float64{a, b})
	require.NoError(t, err)

	assert.Greater(t, res.Peak, 0.9)
	assert.LessOrEqual(t, res.Peak, 1.0)
}

func TestRemote_EnvelopeAndSpectral(t *testing.T) {
	e := testEngine(t)
	a := sine(2048, 128)
	b := sine(2048, 128)

	for _, op := range []types.Operation{types.OpEnvelope, types.OpSpectral} {
		res, err := e.Compute(context.Background(),
			corrRequest(op, types.ModeRemote, false),
			[][]float64{a, b})
		require.NoError(t, err, op)
		assert.Greater(t, res.Peak, 0.5, op)
		assert.LessOrEqual(t, res.Peak, 1.0, op)
	}
}

func TestRemote_CustomOperation(t *testing.T) {
	e := testEngine(t)

	_, err := e.Compute(context.Background(),
		corrRequest(types.OpCustom, types.ModeRemote, false),
		[][]float64{sine(64, 2), sine(64, 2)})
	assert.ErrorIs(t, err, errors.ErrModeUnavailable)

	e.RegisterCustom(func(a, b []float64) ([]float64, error) {
		return []float64{dot(a, b)}, nil
	})
	res, err := e.Compute(context.Background(),
		corrRequest(types.OpCustom, types.ModeRemote, false),
		[][]float64{sine(64, 2), sine(64, 2)})
	require.NoError(t, err)
	assert.Len(t, res.Output, 1)
}

func TestRemote_Cancellation(t *testing.T) {
	e := testEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Compute(ctx,
		corrRequest(types.OpCoherence, types.ModeRemote, false),
		[][]float64{noise(4096, 1), noise(4096, 2)})
	assert.Error(t, err)
}

func TestPrivacy_DotProductOverShares(t *testing.T) {
	e := testEngine(t)

	a := []float64{1, 2, 3, 4}
	b := []float64{0.5, -1, 2, 0.25}
	want := dot(a, b)

	var observed [][]float64
	e.inspectShares = func(shares [][]float64) { observed = shares }

	res, err := e.Compute(context.Background(),
		corrRequest(types.OpMultiply, types.ModePrivacy, false),
		[][]float64{a, b})
	require.NoError(t, err)

	require.Len(t, res.Output, 1)
	assert.InDelta(t, want, res.Output[0], 1e-9)

	// The coordinator saw only shares: none of them is a plaintext segment.
	require.Len(t, observed, 2*DefaultConfig().PrivacyParties)
	for _, share := range observed {
		assert.NotEqual(t, a, share)
		assert.NotEqual(t, b, share)
	}
}

func TestPrivacy_RejectsNonAccumulateOps(t *testing.T) {
	e := testEngine(t)

	_, err := e.Compute(context.Background(),
		corrRequest(types.OpCoherence, types.ModePrivacy, false),
		[][]float64{sine(64, 2), sine(64, 2)})
	assert.ErrorIs(t, err, errors.ErrModeUnavailable)
}

func TestAdaptive_Routing(t *testing.T) {
	e := testEngine(t)
	inputs := [][]float64{sine(512, 8), sine(512, 8)}

	tests := []struct {
		name       string
		mutate     func(*types.CorrelationRequest)
		sameSource bool
		wantMode   types.ExecutionMode
		wantErr    error
	}{
		{
			name:       "hard latency co-located goes local",
			mutate:     func(r *types.CorrelationRequest) { r.MaxLatency = 5 * time.Millisecond },
			sameSource: true,
			wantMode:   types.ModeLocal,
		},
		{
			name:       "hard latency cross-source is unsatisfiable",
			mutate:     func(r *types.CorrelationRequest) { r.MaxLatency = 5 * time.Millisecond },
			sameSource: false,
			wantErr:    errors.ErrConstraintUnsatisfiable,
		},
		{
			name:       "critical privacy cross-source goes privacy",
			mutate:     func(r *types.CorrelationRequest) { r.Privacy = types.PrivacyCritical; r.Op = types.OpMultiply },
			sameSource: false,
			wantMode:   types.ModePrivacy,
		},
		{
			name:       "micro budget co-located goes local",
			mutate:     func(r *types.CorrelationRequest) { r.ComputeBudget = types.BudgetMicro },
			sameSource: true,
			wantMode:   types.ModeLocal,
		},
		{
			name:       "micro budget cross-source goes remote",
			mutate:     func(r *types.CorrelationRequest) { r.ComputeBudget = types.BudgetMicro },
			sameSource: false,
			wantMode:   types.ModeRemote,
		},
		{
			name:       "default goes remote",
			mutate:     func(r *types.CorrelationRequest) {},
			sameSource: false,
			wantMode:   types.ModeRemote,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := corrRequest(types.OpCrossCorr, types.ModeAdaptive, tt.sameSource)
			tt.mutate(req)

			res, err := e.Compute(context.Background(), req, inputs)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMode, res.Mode)
		})
	}
}

func TestCompute_InputValidation(t *testing.T) {
	e := testEngine(t)

	req := corrRequest(types.OpCrossCorr, types.ModeLocal, true)

	_, err := e.Compute(context.Background(), req, [][]float64{sine(64, 2)})
	assert.ErrorIs(t, err, errors.ErrInsufficientData)

	_, err = e.Compute(context.Background(), req,
		[][]float64{sine(64, 2), sine(32, 2)})
	assert.ErrorIs(t, err, errors.ErrInsufficientData)

	req.Streams = req.Streams[:1]
	_, err = e.Compute(context.Background(), req, [][]float64{sine(64, 2)})
	assert.ErrorIs(t, err, errors.ErrInsufficientData)
}
