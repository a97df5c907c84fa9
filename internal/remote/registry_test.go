package remote

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/riskbridge/internal/events"
	cevents "github.com/radieske/riskbridge/pkg/contracts/events"
)

type mapStore struct {
	m   map[uint32]common.Hash
	err error
}

func (s *mapStore) Save(_ context.Context, id uint32, r common.Hash) error {
	if s.err != nil {
		return s.err
	}
	s.m[id] = r
	return nil
}

func (s *mapStore) LoadAll(context.Context) (map[uint32]common.Hash, error) {
	out := make(map[uint32]common.Hash, len(s.m))
	for k, v := range s.m {
		out[k] = v
	}
	return out, s.err
}

var (
	arbContract  = common.HexToAddress("0x88A2AaDe4666903fDab0d9BC986Ed8cad521C3b8")
	someoneElse  = common.HexToAddress("0x000000000000000000000000000000000000beef")
	arbitrumSepo = uint32(40231)
)

func TestSetAndCheckTrustedRemote(t *testing.T) {
	ctx := context.Background()
	rec := &events.Recorder{}
	r := New(zap.NewNop(), nil, rec)

	assert.False(t, r.IsTrusted(arbitrumSepo, AddressToBytes32(arbContract)))

	require.NoError(t, r.SetTrustedRemote(ctx, arbitrumSepo, AddressToBytes32(arbContract)))
	assert.True(t, r.IsTrusted(arbitrumSepo, AddressToBytes32(arbContract)))
	assert.False(t, r.IsTrusted(arbitrumSepo, AddressToBytes32(someoneElse)))
	assert.False(t, r.IsTrusted(40245, AddressToBytes32(arbContract)))

	// sobrescreve
	require.NoError(t, r.SetTrustedRemote(ctx, arbitrumSepo, AddressToBytes32(someoneElse)))
	assert.False(t, r.IsTrusted(arbitrumSepo, AddressToBytes32(arbContract)))
	got, ok := r.Lookup(arbitrumSepo)
	require.True(t, ok)
	assert.Equal(t, AddressToBytes32(someoneElse), got)

	assert.Equal(t, []string{cevents.NameTrustedRemoteSet, cevents.NameTrustedRemoteSet}, rec.Names())
}

func TestZeroRemoteRejected(t *testing.T) {
	r := New(zap.NewNop(), nil, nil)
	assert.ErrorIs(t, r.SetTrustedRemote(context.Background(), arbitrumSepo, common.Hash{}), ErrInvalidRemote)
	assert.False(t, r.IsTrusted(arbitrumSepo, common.Hash{}))
}

func TestRegistryPersistsAndLoads(t *testing.T) {
	ctx := context.Background()
	store := &mapStore{m: map[uint32]common.Hash{}}
	require.NoError(t, New(zap.NewNop(), store, nil).SetTrustedRemote(ctx, arbitrumSepo, AddressToBytes32(arbContract)))

	fresh := New(zap.NewNop(), store, nil)
	require.NoError(t, fresh.Load(ctx))
	assert.True(t, fresh.IsTrusted(arbitrumSepo, AddressToBytes32(arbContract)))
}

func TestSaveFailureKeepsPreviousEntry(t *testing.T) {
	ctx := context.Background()
	store := &mapStore{m: map[uint32]common.Hash{}}
	r := New(zap.NewNop(), store, nil)
	require.NoError(t, r.SetTrustedRemote(ctx, arbitrumSepo, AddressToBytes32(arbContract)))

	store.err = errors.New("redis down")
	assert.Error(t, r.SetTrustedRemote(ctx, arbitrumSepo, AddressToBytes32(someoneElse)))
	assert.True(t, r.IsTrusted(arbitrumSepo, AddressToBytes32(arbContract)))
}

func TestParseRemote(t *testing.T) {
	h, err := ParseRemote("0x88A2AaDe4666903fDab0d9BC986Ed8cad521C3b8")
	require.NoError(t, err)
	assert.Equal(t, "0x00000000000000000000000088a2aade4666903fdab0d9bc986ed8cad521c3b8", h.Hex())

	h2, err := ParseRemote(h.Hex())
	require.NoError(t, err)
	assert.Equal(t, h, h2)

	_, err = ParseRemote("0x1234")
	assert.ErrorIs(t, err, ErrInvalidRemote)
	_, err = ParseRemote("nothex")
	assert.ErrorIs(t, err, ErrInvalidRemote)
}
