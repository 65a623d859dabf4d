package intake_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/MrJamesThe3rd/debtsync/internal/intake"
)

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func TestParser_Statement(t *testing.T) {
	csv := `Consultar movimentos - 31-01-2026
Conta;0000 - EUR

Data mov.;Data-valor;Código cliente;Descrição;Montante;Saldo
30-01-2026;30-01-2026;R-01;TRF JANEIRO;1.250,00;48.825,46
29-01-2026;29-01-2026;R-02;TRF PARCIAL;588,74;47.575,46
 ; ; ; ;Página 1/2;
`

	got, err := intake.NewParser().Parse(strings.NewReader(csv))
	require.NoError(t, err)

	assert.Equal(t, "statement", got.Profile)
	assert.Empty(t, got.Rejects)
	require.Len(t, got.Records, 2)

	assert.Equal(t, 5, got.Records[0].Row)
	assert.Equal(t, "R-01", got.Records[0].RepresentativeCode)
	assert.Equal(t, date(2026, 1, 30), got.Records[0].PaymentDate)
	assert.True(t, got.Records[0].Amount.Equal(decimal.RequireFromString("1250")))
	assert.Equal(t, "TRF JANEIRO", got.Records[0].Reference)

	assert.Equal(t, "R-02", got.Records[1].RepresentativeCode)
	assert.True(t, got.Records[1].Amount.Equal(decimal.RequireFromString("588.74")))
}

func TestParser_RemittanceCommaSeparated(t *testing.T) {
	csv := "Representative,Payment Date,Amount,Reference\n" +
		"R-01,2025-05-01,\"1,500.00\",wire 77\n" +
		"R-02,2025-05-02,300,\n"

	got, err := intake.NewParser().Parse(strings.NewReader(csv))
	require.NoError(t, err)

	assert.Equal(t, "remittance", got.Profile)
	require.Len(t, got.Records, 2)

	assert.True(t, got.Records[0].Amount.Equal(decimal.RequireFromString("1500")))
	assert.Equal(t, "wire 77", got.Records[0].Reference)
	assert.Equal(t, date(2025, 5, 2), got.Records[1].PaymentDate)
	assert.Empty(t, got.Records[1].Reference)
}

func TestParser_Rejects(t *testing.T) {
	csv := `code;date;amount
R-01;2025-05-01;abc
;2025-05-01;10
R-02;2025-05-01;-5,00
R-03;2025-05-01;0
R-04;2025-05-01;7,50
`

	got, err := intake.NewParser().Parse(strings.NewReader(csv))
	require.NoError(t, err)

	require.Len(t, got.Records, 1)
	assert.Equal(t, "R-04", got.Records[0].RepresentativeCode)

	rows := make([]int, len(got.Rejects))
	for i, r := range got.Rejects {
		rows[i] = r.Row
	}

	assert.Equal(t, []int{2, 3, 4, 5}, rows)
}

func TestParser_Windows1252(t *testing.T) {
	text := "Data;Código cliente;Descrição;Montante\n01-02-2026;R-09;Liquidação;10,00\n"

	encoded, err := charmap.Windows1252.NewEncoder().Bytes([]byte(text))
	require.NoError(t, err)

	got, err := intake.NewParser().Parse(bytes.NewReader(encoded))
	require.NoError(t, err)
	require.Len(t, got.Records, 1)

	assert.Equal(t, "Liquidação", got.Records[0].Reference)
}

func TestParser_UnknownFormat(t *testing.T) {
	_, err := intake.NewParser().Parse(strings.NewReader("foo;bar\n1;2\n"))
	assert.ErrorIs(t, err, intake.ErrUnknownFormat)
}
