package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/statement-ledger/internal/domain"
	"github.com/dvloznov/statement-ledger/internal/logger"
	"github.com/dvloznov/statement-ledger/internal/pipeline"
	"github.com/dvloznov/statement-ledger/internal/store"
)

// StatementParser runs one statement parse.
type StatementParser interface {
	Parse(ctx context.Context, rc domain.RequestContext, statementID string, opts pipeline.ParseOptions) (*pipeline.ParseResult, error)
}

// NewParseHandler returns a JobHandler that parses ParseStatementJobs with p.
// Missing statements, missing users and parses already in progress fail the
// job without retries.
func NewParseHandler(p StatementParser) JobHandler {
	return func(ctx context.Context, job Job) error {
		j, ok := job.(*ParseStatementJob)
		if !ok {
			return Permanent(fmt.Errorf("parse handler: unexpected job type %s", job.GetType()))
		}
		rc := domain.RequestContext{UserID: j.UserID, RequestID: j.RequestID}
		log := logger.ForStatement(logger.FromContext(ctx), j.UserID, j.StatementID).
			With().Str("job_id", j.JobID).Logger()

		res, err := p.Parse(logger.WithContext(ctx, log), rc, j.StatementID, pipeline.ParseOptions{Force: j.Force})
		switch {
		case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrParseInProgress), errors.Is(err, domain.ErrMissingUser):
			return Permanent(err)
		case err != nil:
			return err
		}

		log.Info().
			Str("parse_status", string(res.Status)).
			Int("tx_count", res.TxCount).
			Msg("Parse job finished")
		return nil
	}
}
