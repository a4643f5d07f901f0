package scheduler

import "errors"

var ErrCanceled = errors.New("job canceled")
