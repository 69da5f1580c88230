package core

import (
	"context"

	"github.com/cloudfs/cloudsh/internal/model"
	"github.com/cloudfs/cloudsh/internal/provider"
)

// DeleteOutcome is the result for one path given to DeleteNodes.
type DeleteOutcome struct {
	Path   string
	Handle model.Handle
	Err    error
}

// DeleteResult reports what was deleted.
type DeleteResult struct {
	Deleted  int
	Failed   int
	Errors   []error
	Outcomes []DeleteOutcome
}

// DeleteNodes removes each path, recursively, independently of the others.
// A path that does not resolve is reported and skipped; no failure stops
// the remaining paths.
func (s *Session) DeleteNodes(ctx context.Context, paths []string) (*DeleteResult, error) {
	if err := s.requireLogin("rm"); err != nil {
		return nil, err
	}

	result := &DeleteResult{
		Errors: make([]error, 0),
	}

	for _, p := range paths {
		outcome := DeleteOutcome{Path: p, Handle: model.UNDEF}

		res, err := s.Resolve(p)
		if err == nil && res.Node == nil {
			err = opErr("rm", p, ErrNotFound)
		}
		if err == nil {
			outcome.Handle = res.Node.Handle
			err = s.remove(ctx, res.Node, p)
		}

		outcome.Err = err
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, err)
		} else {
			result.Deleted++
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}

	return result, nil
}

func (s *Session) remove(ctx context.Context, n *model.Node, path string) error {
	opID := s.journalBegin(ctx, "rm", path)
	s.logger.Debug().Str("path", path).Msg("Deleting recursively")
	_, err := s.await(ctx, s.opts.OpTimeout, "rm", path, func(l provider.RequestListener) {
		s.store.Remove(n, l)
	})
	s.journalEnd(ctx, opID, err)
	if err != nil {
		s.logger.Error().Err(err).Str("path", path).Msg("Failed to delete")
	}
	return err
}
