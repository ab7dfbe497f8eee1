package command

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thereceipt/printer-bridge/internal/bridge"
	"github.com/thereceipt/printer-bridge/internal/ipc"
	"github.com/thereceipt/printer-bridge/internal/ipc/ipctest"
	"github.com/thereceipt/printer-bridge/internal/remote/remotetest"
)

func newTestExecutor(t *testing.T) (*Executor, *remotetest.Recorder) {
	t.Helper()
	rec := remotetest.NewRecorder()
	binder := ipctest.NewBinder()
	binder.AutoConnect = rec

	b := bridge.New(bridge.NewController(binder, ipc.DefaultLocator, nil), bridge.NewSerializer(nil))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = b.Close(ctx)
	})
	return NewExecutor(b), rec
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"", []string{}},
		{"   ", []string{}},
		{"status", []string{"status"}},
		{"text hello   world", []string{"text", "hello", "world"}},
		{`text "hello world"`, []string{"text", "hello world"}},
		{`text 'it''s'`, []string{"text", "its"}},
		{`text "say 'hi'"`, []string{"text", "say 'hi'"}},
		{`table "Coffee|2" "3|1" "0|2"`, []string{"table", "Coffee|2", "3|1", "0|2"}},
		{`text ""`, []string{"text", ""}},
		{"feed\t2", []string{"feed", "2"}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseCommand(tt.input))
		})
	}
}

func TestExecute_BindAndPrint(t *testing.T) {
	e, rec := newTestExecutor(t)
	ctx := context.Background()

	res := e.Execute(ctx, "text hello")
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, bridge.ErrNotConnected)

	res = e.Execute(ctx, "bind")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "bound", res.Data["state"])

	for _, cmd := range []string{
		`text "Corner Cafe"`,
		"align 1",
		"size 48",
		"bold on",
		"feed 2",
		"barcode 590123412345 2 80 2",
		"qr https://example.com 6 1",
		`table "Coffee|7.00" "3|1" "0|2"`,
		"epson G0AK",
		"bold off",
		"feed",
	} {
		res := e.Execute(ctx, cmd)
		require.True(t, res.Success, "%s: %s", cmd, res.Error)
	}

	calls := rec.Calls()
	require.Len(t, calls, 11)
	assert.Equal(t, []any{"Corner Cafe"}, calls[0].Args)
	assert.Equal(t, []any{1}, calls[1].Args)
	assert.Equal(t, []any{float32(48)}, calls[2].Args)
	assert.Equal(t, []any{true}, calls[3].Args)
	assert.Equal(t, []any{2}, calls[4].Args)
	assert.Equal(t, []any{"590123412345", 2, 80, 2}, calls[5].Args)
	assert.Equal(t, []any{"https://example.com", 6, 1}, calls[6].Args)
	assert.Equal(t, []any{[]string{"Coffee", "7.00"}, []int{3, 1}, []int{0, 2}}, calls[7].Args)
	assert.Equal(t, []any{[]byte{0x1b, 0x40, 0x0a}}, calls[8].Args)
	assert.Equal(t, []any{false}, calls[9].Args)
	assert.Equal(t, []any{1}, calls[10].Args)

	res = e.Execute(ctx, "unbind")
	require.True(t, res.Success)
	res = e.Execute(ctx, "status")
	assert.Equal(t, "unbound", res.Data["state"])
}

func TestExecute_Errors(t *testing.T) {
	e, rec := newTestExecutor(t)
	ctx := context.Background()
	require.True(t, e.Execute(ctx, "bind").Success)

	tests := []struct {
		cmd     string
		wantErr error
	}{
		{"", bridge.ErrInvalidArgument},
		{"frobnicate", bridge.ErrInvalidArgument},
		{"text", bridge.ErrInvalidArgument},
		{"align left", bridge.ErrInvalidArgument},
		{"size big", bridge.ErrInvalidArgument},
		{"bold maybe", bridge.ErrInvalidArgument},
		{"feed 1 2", bridge.ErrInvalidArgument},
		{"barcode 123 2 80", bridge.ErrInvalidArgument},
		{`table "a|b" "1" "0|0"`, bridge.ErrMalformedTableRow},
		{"epson !!!", bridge.ErrDecodeFailed},
		{"bitmap @/nonexistent/logo.png", nil},
	}
	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			res := e.Execute(ctx, tt.cmd)
			assert.False(t, res.Success)
			assert.NotEmpty(t, res.Error)
			if tt.wantErr != nil {
				assert.ErrorIs(t, res.Err, tt.wantErr)
			}
		})
	}
	assert.Zero(t, rec.Count())
}

func TestExecute_PayloadFromFile(t *testing.T) {
	e, rec := newTestExecutor(t)
	ctx := context.Background()
	require.True(t, e.Execute(ctx, "bind").Success)

	path := filepath.Join(t.TempDir(), "init.bin")
	require.NoError(t, os.WriteFile(path, []byte{0x1b, 0x40}, 0o644))

	res := e.Execute(ctx, "epson @"+path)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, []any{[]byte{0x1b, 0x40}}, rec.Calls()[0].Args)
}

func TestExecute_RunScript(t *testing.T) {
	e, rec := newTestExecutor(t)
	ctx := context.Background()
	require.True(t, e.Execute(ctx, "bind").Success)

	dir := t.TempDir()
	raw := base64.StdEncoding.EncodeToString([]byte{0x1b, 0x64, 0x03})
	path := filepath.Join(dir, "receipt.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`version: "1.0"
name: Test
steps:
  - type: text
    value: hello
  - type: epson
    base64: `+raw+`
`), 0o644))

	res := e.Execute(ctx, "run "+path)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 2, res.Data["steps"])
	assert.Equal(t, []string{"PrintText", "PrintEpson"}, rec.Methods())
}

func TestExecute_Help(t *testing.T) {
	e, _ := newTestExecutor(t)
	res := e.Execute(context.Background(), "help")
	assert.True(t, res.Success)
	assert.Contains(t, res.Message, "table <c1|c2>")
}
