package mint

import "time"

// Recorder accumulates transaction attempts in submission order and folds
// them into a Result summary. A summary is always produced, even when
// every attempt failed.
type Recorder struct {
	runID    string
	req      Request
	dryRun   bool
	started  time.Time
	attempts []Attempt
	resolved *int64
}

// NewRecorder starts an attempt history for one run.
func NewRecorder(req Request, dryRun bool, started time.Time) *Recorder {
	return &Recorder{
		runID:   newRunID(),
		req:     req,
		dryRun:  dryRun,
		started: started,
	}
}

// RunID identifies this run in the journal.
func (r *Recorder) RunID() string { return r.runID }

// SetResolvedAmount records the quantity actually minted once an auto-max
// request has been resolved against contract state.
func (r *Recorder) SetResolvedAmount(amount int64) {
	r.resolved = &amount
}

// Record appends an attempt to the history.
func (r *Recorder) Record(a Attempt) {
	r.attempts = append(r.attempts, a)
}

// Attempts returns a copy of the history so far.
func (r *Recorder) Attempts() []Attempt {
	out := make([]Attempt, len(r.attempts))
	copy(out, r.attempts)
	return out
}

// Summarize folds the history into an immutable result. Calling it twice
// with the same arguments yields identical results.
func (r *Recorder) Summarize(finalState State, runErr error, finishedAt time.Time) Result {
	amount := r.req.Amount
	if r.resolved != nil {
		amount = *r.resolved
	}
	res := Result{
		RunID:      r.runID,
		Network:    r.req.Network.Name,
		Contract:   r.req.Contract.Hex(),
		Recipient:  r.req.Recipient.Hex(),
		GroupID:    r.req.GroupID,
		Amount:     amount,
		State:      finalState,
		Attempts:   r.Attempts(),
		DryRun:     r.dryRun,
		StartedAt:  r.started,
		FinishedAt: finishedAt,
	}
	if runErr != nil {
		res.Err = runErr.Error()
	}
	for i := len(res.Attempts) - 1; i >= 0; i-- {
		if res.Attempts[i].Status == AttemptConfirmed {
			res.TxHash = res.Attempts[i].TxHash
			res.ExplorerURL = r.req.Network.TxURL(res.TxHash)
			break
		}
	}
	return res
}
