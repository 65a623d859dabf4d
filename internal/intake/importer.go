package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/debtsync/internal/allocation"
	"github.com/MrJamesThe3rd/debtsync/internal/ledger"
)

// Recorder stores imported payments. *allocation.Service satisfies it.
type Recorder interface {
	RecordPayment(ctx context.Context, params allocation.PaymentParams) (*ledger.Payment, error)
	AutoAllocate(ctx context.Context, paymentID uuid.UUID, actor string) (*allocation.Result, error)
}

// Directory resolves representative codes.
type Directory interface {
	ListRepresentatives(ctx context.Context, filter ledger.RepresentativeFilter) ([]*ledger.Representative, error)
}

type ImportOptions struct {
	// AutoAllocate runs FIFO allocation for every recorded payment.
	AutoAllocate bool
	Actor        string
}

type Summary struct {
	Profile    string
	Parsed     int
	Recorded   int
	Allocated  int
	PaymentIDs []uuid.UUID
	Rejects    []Reject
}

type Importer struct {
	parser   *Parser
	recorder Recorder
	dir      Directory
}

func NewImporter(recorder Recorder, dir Directory) *Importer {
	return &Importer{parser: NewParser(), recorder: recorder, dir: dir}
}

// Import parses r and records each line as an unallocated payment. Lines
// that fail are rejected individually; only an unreadable file or a store
// failure while resolving codes aborts the import.
func (im *Importer) Import(ctx context.Context, r io.Reader, opts ImportOptions) (*Summary, error) {
	parsed, err := im.parser.Parse(r)
	if err != nil {
		return nil, err
	}

	reps, err := im.dir.ListRepresentatives(ctx, ledger.RepresentativeFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing representatives: %w", err)
	}

	byCode := make(map[string]*ledger.Representative, len(reps))
	for _, rep := range reps {
		byCode[rep.Code] = rep
	}

	out := &Summary{Profile: parsed.Profile, Parsed: len(parsed.Records), Rejects: parsed.Rejects}

	for _, rec := range parsed.Records {
		rep, ok := byCode[rec.RepresentativeCode]
		if !ok {
			out.Rejects = append(out.Rejects, Reject{Row: rec.Row, Reason: fmt.Sprintf("unknown representative %q", rec.RepresentativeCode)})
			continue
		}

		p, err := im.recorder.RecordPayment(ctx, allocation.PaymentParams{
			RepresentativeID: rep.ID,
			Amount:           rec.Amount,
			PaymentDate:      rec.PaymentDate,
			Reference:        rec.Reference,
		})
		if err != nil {
			out.Rejects = append(out.Rejects, Reject{Row: rec.Row, Reason: err.Error()})
			continue
		}

		out.Recorded++
		out.PaymentIDs = append(out.PaymentIDs, p.ID)

		if !opts.AutoAllocate {
			continue
		}

		if _, err := im.recorder.AutoAllocate(ctx, p.ID, opts.Actor); err != nil {
			if !errors.Is(err, allocation.ErrNoEligibleInvoice) {
				slog.Warn("auto allocation after import failed", "payment_id", p.ID, "error", err)
			}

			continue
		}

		out.Allocated++
	}

	slog.Info("remittance imported",
		"profile", out.Profile,
		"parsed", out.Parsed,
		"recorded", out.Recorded,
		"allocated", out.Allocated,
		"rejected", len(out.Rejects),
	)

	return out, nil
}
