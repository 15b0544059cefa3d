package rcp_test

import (
	"errors"
	"testing"

	"github.com/mikewadsten/wisun-router/internal/rcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeRecordsDataTx(t *testing.T) {
	t.Parallel()

	f := &rcp.Fake{}

	req := rcp.DataTxRequest{Frame: []byte{1, 2, 3}, Handle: 7}
	require.NoError(t, f.DataTx(req))

	require.Len(t, f.Sent, 1)
	assert.Equal(t, req, f.Sent[0])
}

func TestFakeFailNextAppliesOnce(t *testing.T) {
	t.Parallel()

	f := &rcp.Fake{FailNext: errors.New("boom")}

	err := f.ReqRadioEnable()
	assert.Error(t, err)
	assert.Equal(t, 0, f.EnabledCount)

	require.NoError(t, f.ReqRadioEnable())
	assert.Equal(t, 1, f.EnabledCount)
}
