package intake_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"

	"github.com/MrJamesThe3rd/debtsync/internal/intake"
)

func readAllUTF8(t *testing.T, input []byte) string {
	t.Helper()

	r, err := intake.UTF8Reader(bytes.NewReader(input))
	require.NoError(t, err)

	got, err := io.ReadAll(r)
	require.NoError(t, err)

	return string(got)
}

func TestUTF8Reader(t *testing.T) {
	const text = "Código cliente;Descrição;Montante\nR-01;Transferência;1.250,00\n"

	utf16le, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().Bytes([]byte(text))
	require.NoError(t, err)

	type testCase struct {
		name  string
		input []byte
		want  string
	}

	tests := []testCase{
		{name: "UTF8Passthrough", input: []byte(text), want: text},
		{name: "UTF8BOMStripped", input: append([]byte{0xEF, 0xBB, 0xBF}, text...), want: text},
		{name: "UTF16LE", input: utf16le, want: text},
		{
			// Windows-1252: ç = 0xE7, ã = 0xE3
			name:  "Windows1252",
			input: []byte{'D', 'e', 's', 'c', 'r', 'i', 0xE7, 0xE3, 'o', ';', 'M', 'o', 'n', 't', 'a', 'n', 't', 'e', '\n'},
			want:  "Descrição;Montante\n",
		},
		{name: "Empty", input: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, readAllUTF8(t, tt.input))
		})
	}
}
