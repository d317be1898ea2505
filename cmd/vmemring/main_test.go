package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugawarayuuta/sonnet"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = io.Discard

	err := app.Run(append([]string{`vmemring`, `--no-color`, `--log-level`, `quiet`}, args...))
	return out.String(), err
}

func TestWriteReadDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), `ring.vmem`)
	ring := []string{`--path`, path, `--size`, `16`, `--entries`, `4`}

	out, err := run(t, append(ring, `write`, `ring`, `aaaaa`, `bbbbb`, `ccccc`, `ddddd`)...)
	require.NoError(t, err)
	assert.Contains(t, out, `wrote 4 records to ring`)

	out, err = run(t, append(ring, `read`, `ring`, `0`)...)
	require.NoError(t, err)
	assert.Equal(t, "bbbbb\n", out)

	out, err = run(t, append(ring, `read`, `ring`, `-1`)...)
	require.NoError(t, err)
	assert.Equal(t, "ddddd\n", out)

	out, err = run(t, append(ring, `dump`, `ring`)...)
	require.NoError(t, err)
	assert.Equal(t, "[0] bbbbb\n[1] ccccc\n[2] ddddd\n", out)

	_, err = run(t, append(ring, `read`, `ring`, `3`)...)
	assert.Error(t, err)
}

func TestInfoJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), `ring.vmem`)
	ring := []string{`--path`, path, `--size`, `10`, `--entries`, `4`}

	_, err := run(t, append(ring, `write`, `ring`, `12345678`, `uvwxyz`)...)
	require.NoError(t, err)

	out, err := run(t, append(ring, `info`, `--json`, `ring`)...)
	require.NoError(t, err)

	var info ringInfo
	require.NoError(t, sonnet.Unmarshal([]byte(out), &info))
	assert.Equal(t, 1, info.Count)
	assert.Equal(t, uint32(1), info.Tail)
	assert.Equal(t, uint32(2), info.Head)
	assert.Equal(t, []uint32{6}, info.Sizes)
	assert.Equal(t, uint32(10), info.DataSize)
}

func TestQueueAndHex(t *testing.T) {
	path := filepath.Join(t.TempDir(), `ring.vmem`)
	ring := []string{`--path`, path, `--size`, `64`, `--entries`, `8`}

	out, err := run(t, append(ring, `queue`, `--max`, `2`, `--hex`, `ring`, `6869`, `7468657265`, `21`)...)
	require.NoError(t, err)
	assert.Contains(t, out, `pushed 3 records`)

	out, err = run(t, append(ring, `dump`, `--hex`, `ring`)...)
	require.NoError(t, err)
	assert.Equal(t, "[0] 6869\n[1] 7468657265\n[2] 21\n", out)
}

func TestConfigFileAndList(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, `vmem.json`)
	doc := `{"areas":[` +
		`{"name":"log","type":"ring","store":"sqlite","path":"` + filepath.Join(dir, `node.db`) + `","size":64,"entries":4},` +
		`{"name":"scratch","type":"image","store":"file","path":"` + filepath.Join(dir, `scratch.img`) + `","size":32}]}`
	require.NoError(t, os.WriteFile(cfg, []byte(doc), 0o644))

	out, err := run(t, `--config`, cfg, `list`)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "log\tring\t88", lines[0])
	assert.Equal(t, "scratch\timage\t32", lines[1])

	_, err = run(t, `--config`, cfg, `write`, `--addr`, `4`, `scratch`, `abc`)
	require.NoError(t, err)

	out, err = run(t, `--config`, cfg, `read`, `--length`, `3`, `scratch`, `4`)
	require.NoError(t, err)
	assert.Equal(t, "abc\n", out)

	_, err = run(t, `--config`, cfg, `dump`, `scratch`)
	assert.Error(t, err)

	_, err = run(t, `--config`, cfg, `info`, `missing`)
	assert.Error(t, err)
}
