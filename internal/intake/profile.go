package intake

import "strings"

// Profile describes the column layout of one remittance export format. Each
// column lists the header spellings it is known under; matching ignores case
// and surrounding spaces. Reference is optional.
type Profile struct {
	Name        string
	Code        []string
	Date        []string
	Amount      []string
	Reference   []string
	DateLayouts []string
}

// profiles are tried in order; more specific layouts come first.
var profiles = []Profile{
	{
		Name:        "statement",
		Code:        []string{"código cliente", "codigo cliente"},
		Date:        []string{"data mov.", "data"},
		Amount:      []string{"montante", "movimento"},
		Reference:   []string{"descrição", "descricao"},
		DateLayouts: []string{"02-01-2006", "02/01/2006"},
	},
	{
		Name:        "remittance",
		Code:        []string{"representative", "representative code", "rep code", "code"},
		Date:        []string{"payment date", "date"},
		Amount:      []string{"amount", "paid"},
		Reference:   []string{"reference", "ref", "note"},
		DateLayouts: []string{"2006-01-02", "02/01/2006", "02-01-2006"},
	},
}

// columns maps a profile's fields to cell indexes of a header row. Missing
// optional columns are -1.
type columns struct {
	code, date, amount, reference int
}

func (p *Profile) match(header []string) (columns, bool) {
	idx := make(map[string]int, len(header))

	for i, cell := range header {
		name := strings.ToLower(strings.TrimSpace(cell))
		if _, dup := idx[name]; name != "" && !dup {
			idx[name] = i
		}
	}

	find := func(aliases []string) int {
		for _, a := range aliases {
			if i, ok := idx[a]; ok {
				return i
			}
		}

		return -1
	}

	cols := columns{
		code:      find(p.Code),
		date:      find(p.Date),
		amount:    find(p.Amount),
		reference: find(p.Reference),
	}

	return cols, cols.code >= 0 && cols.date >= 0 && cols.amount >= 0
}
