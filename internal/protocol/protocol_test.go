package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeProducesBytesForEveryKind(t *testing.T) {
	cases := []Value{
		SimpleString("OK"),
		Error("ERR boom"),
		Integer(42),
		Integer(-1),
		Bulk("bar"),
		NullBulk(),
		NullArray(),
		Array(Bulk("k"), Bulk("v")),
		Array(Array(Bulk("a")), Array(Bulk("b"), Integer(1))),
	}
	for _, v := range cases {
		encoded := Encode(v)
		assert.NotEmpty(t, encoded)
	}
}

func TestDecodePing(t *testing.T) {
	buf := []byte("*1\r\n$4\r\nPING\r\n")
	cmd, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"PING"}, cmd.Args)
	assert.Equal(t, len(buf), cmd.Consumed)
}

func TestDecodeSetWithPX(t *testing.T) {
	buf := []byte("*5\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n$2\r\nPX\r\n$3\r\n100\r\n")
	cmd, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"SET", "foo", "bar", "PX", "100"}, cmd.Args)
	assert.Equal(t, len(buf), cmd.Consumed)
}

func TestDecodeIncomplete(t *testing.T) {
	buf := []byte("*2\r\n$3\r\nfoo\r\n$3\r\nba")
	_, err := Decode(buf)
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestDecodeInvalidLeadingByte(t *testing.T) {
	_, err := Decode([]byte("!garbage\r\n"))
	assert.ErrorIs(t, err, ErrParse)
}

func TestDecodeBatchMultipleFrames(t *testing.T) {
	buf := []byte("*1\r\n$4\r\nPING\r\n*1\r\n$4\r\nPING\r\n")
	cmds, consumed, err := DecodeBatch(buf)
	require.NoError(t, err)
	assert.Len(t, cmds, 2)
	assert.Equal(t, len(buf), consumed)
}

func TestDecodeBatchSkipsInlineSimpleString(t *testing.T) {
	buf := []byte("+PONG\r\n*1\r\n$4\r\nPING\r\n")
	cmds, consumed, err := DecodeBatch(buf)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, []string{"PING"}, cmds[0].Args)
	assert.Equal(t, len(buf), consumed)
}

func TestDecodeBatchStopsAtNulPadding(t *testing.T) {
	buf := append([]byte("*1\r\n$4\r\nPING\r\n"), make([]byte, 8)...)
	cmds, consumed, err := DecodeBatch(buf)
	require.NoError(t, err)
	assert.Len(t, cmds, 1)
	assert.Equal(t, 14, consumed)
}

func TestEncodeNullBulkLiteral(t *testing.T) {
	assert.Equal(t, "$-1\r\n", string(Encode(NullBulk())))
	assert.Equal(t, "$0\r\n\r\n", string(Encode(Bulk(""))))
}

func TestEncodeFileBlob(t *testing.T) {
	payload := []byte("hello")
	got := EncodeFileBlob(payload)
	assert.Equal(t, "$5\r\nhello", string(got))
}
