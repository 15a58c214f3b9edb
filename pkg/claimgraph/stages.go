package claimgraph

import "log/slog"

// StageFunc is the contract every stage implements.
//
// A stage reads the state it is given (a copy) and returns the fields it
// wants to change. Business outcomes such as a failed audit are ordinary
// updates; collaborator failures are reported through Update.Error.
type StageFunc func(ctx Context, s State) Update

// NewExtractor builds the extraction stage.
// src may be nil, in which case the collaborator only sees identifiers.
func NewExtractor(inf Inferencer, src RecordSource) StageFunc {
	return func(ctx Context, s State) Update {
		if len(s.SubjectIDs) == 0 {
			// Nothing to read means nothing found.
			return Update{
				Extracted: &Extracted{Diagnoses: []string{}, Procedures: []string{}, Observations: []string{}},
				Next:      ActionCode,
			}
		}
		if inf == nil {
			return Fail(&CollaboratorError{Stage: StageExtract, Op: "infer", Err: ErrNilInferencer})
		}

		in := ExtractInput{SubjectIDs: s.SubjectIDs}
		if src != nil {
			records, err := src.Records(ctx, s.SubjectIDs)
			if err != nil {
				return Fail(&CollaboratorError{Stage: StageExtract, Op: "load records", Err: err})
			}
			in.Records = records
		}

		ctx.Logger().Info("extracting findings",
			slog.Int("subjects", len(s.SubjectIDs)),
			slog.Int("records", len(in.Records)),
		)

		found, err := inf.Extract(ctx, in)
		if err != nil {
			return Fail(&CollaboratorError{Stage: StageExtract, Op: "infer", Err: err})
		}
		return Update{Extracted: &found, Next: ActionCode}
	}
}

// NewCoder builds the coding stage.
func NewCoder(inf Inferencer) StageFunc {
	return func(ctx Context, s State) Update {
		if s.Extracted == nil {
			return Fail(&PreconditionError{Stage: StageCode, Err: ErrMissingExtracted})
		}
		if inf == nil {
			return Fail(&CollaboratorError{Stage: StageCode, Op: "infer", Err: ErrNilInferencer})
		}

		in := CodeInput{
			Extracted: *s.Extracted,
			Attempt:   s.RetryCount + 1,
		}
		if s.Next == ActionRetryCode {
			in.Feedback = s.Audit
			in.Previous = s.Coded
		}

		ctx.Logger().Info("assigning codes", slog.Bool("retry", in.Feedback != nil))

		coded, err := inf.Code(ctx, in)
		if err != nil {
			return Fail(&CollaboratorError{Stage: StageCode, Op: "infer", Err: err})
		}
		return Update{Coded: &coded, Next: ActionAudit}
	}
}

// NewAuditor builds the audit stage, which also owns the retry decision.
func NewAuditor(inf Inferencer) StageFunc {
	return func(ctx Context, s State) Update {
		if s.Coded == nil {
			return Fail(&PreconditionError{Stage: StageAudit, Err: ErrMissingCoded})
		}
		if inf == nil {
			return Fail(&CollaboratorError{Stage: StageAudit, Op: "infer", Err: ErrNilInferencer})
		}

		in := AuditInput{Coded: *s.Coded, Attempt: s.RetryCount + 1}
		if s.Extracted != nil {
			in.Extracted = *s.Extracted
		}

		verdict, err := inf.Audit(ctx, in)
		if err != nil {
			return Fail(&CollaboratorError{Stage: StageAudit, Op: "infer", Err: err})
		}
		if verdict.Severity == "" {
			verdict.Severity = SeverityLow
		}

		if verdict.Passed {
			ctx.Logger().Info("audit passed")
			return Update{Audit: &verdict, Next: ActionEnd}
		}

		if s.RetryCount < s.MaxRetries {
			next := s.RetryCount + 1
			ctx.Logger().Warn("audit failed, retrying coder",
				slog.Int("retry", next),
				slog.Int("max_retries", s.MaxRetries),
				slog.Any("issues", verdict.Issues),
			)
			return Update{Audit: &verdict, RetryCount: &next, Next: ActionRetryCode}
		}

		ctx.Logger().Error("max retries reached, audit still failing",
			slog.Int("max_retries", s.MaxRetries),
			slog.Any("issues", verdict.Issues),
		)
		return Update{Audit: &verdict, Next: ActionEnd}
	}
}
