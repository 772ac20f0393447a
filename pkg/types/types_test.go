package types_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bundlescope/bundlescope/pkg/types"
)

func TestFormatValid(t *testing.T) {
	assert.True(t, types.FormatSosreport.Valid())
	assert.True(t, types.FormatSupportconfig.Valid())
	assert.False(t, types.Format("tarball").Valid())
	assert.False(t, types.Format("").Valid())
}

func TestSeverityRank(t *testing.T) {
	assert.Equal(t, 0, types.SeverityCritical.Rank())
	assert.Equal(t, 1, types.SeverityWarning.Rank())
	assert.Equal(t, 2, types.SeverityOK.Rank())
	assert.Greater(t, types.Severity("bogus").Rank(), types.SeverityOK.Rank())
}
