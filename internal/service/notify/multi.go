package notify

import (
	"context"
	"errors"

	domrepo "FXEngine/internal/domain/repository"
)

// Multi fans a message out to every notifier and joins their errors.
type Multi []domrepo.Notifier

func NewMulti(ns ...domrepo.Notifier) Multi {
	out := make(Multi, 0, len(ns))
	for _, n := range ns {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (m Multi) Notify(ctx context.Context, message string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
