package deploy

import (
	"context"

	"xdao.co/covenants/chain"
	"xdao.co/covenants/contract"
)

// Refresh asks the oracle whether the record's output has been spent and, if
// so, records how. Records already in a terminal state are returned as is.
func (s *Store) Refresh(ctx context.Context, o chain.Oracle, id string) (*Record, error) {
	r, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status.Terminal() {
		return r, nil
	}
	op, err := r.OutPoint()
	if err != nil {
		return nil, err
	}
	st, err := o.SpendStatus(ctx, op)
	if err != nil {
		return nil, err
	}
	if !st.Spent {
		return r, nil
	}
	spender, err := chain.FetchTx(ctx, o, st.SpentBy)
	if err != nil {
		return nil, err
	}
	state, _, err := contract.StateFromSpend(spender, op)
	if err != nil {
		return nil, err
	}
	return s.MarkSpent(ctx, id, state, st.SpentBy)
}
