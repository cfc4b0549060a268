package task

import "context"

type Reader interface {
	StatusAndTitle(ctx context.Context, id int64) (Status, string, error)
}
