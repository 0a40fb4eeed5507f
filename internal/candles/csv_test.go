package candles

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trader/internal/schema"
)

const sampleCSV = `ts,open,high,low,close,volume
60000,100,101,99,100.5,12.5
120000,100.5,102,100,101.2,8
180000,101.2,101.5,100.8,101,0
`

func TestReadParsesRows(t *testing.T) {
	out, err := Read(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, schema.Candle{
		TsMs:   60000,
		Open:   100,
		High:   101,
		Low:    99,
		Close:  100.5,
		Volume: 12.5,
	}, out[0])
	assert.Equal(t, int64(180000), out[2].TsMs)
	assert.Zero(t, out[2].Volume)
}

func TestReadEmptyAfterHeader(t *testing.T) {
	out, err := Read(strings.NewReader("ts,open,high,low,close,volume\n"))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestReadRejectsBadRows(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"short row", "ts,open,high,low,close,volume\n60000,100,101\n", "want 6 columns"},
		{"bad timestamp", "ts,open,high,low,close,volume\nabc,100,101,99,100,1\n", "timestamp"},
		{"bad close", "ts,open,high,low,close,volume\n60000,100,101,99,nope,1\n", "close"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tc.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestReadRejectsUnorderedTimestamps(t *testing.T) {
	body := "ts,open,high,low,close,volume\n120000,1,1,1,1,1\n60000,1,1,1,1,1\n"
	_, err := Read(strings.NewReader(body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strictly increasing")

	dup := "ts,open,high,low,close,volume\n60000,1,1,1,1,1\n60000,1,1,1,1,1\n"
	_, err = Read(strings.NewReader(dup))
	require.Error(t, err)
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "BTC_USDT.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))

	out, err := LoadCSV(path)
	require.NoError(t, err)
	assert.Len(t, out, 3)

	_, err = LoadCSV(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
}
