package flows

import "errors"

// errNotReplayable reports a request whose body cannot be rewound for a
// retry attempt.
var errNotReplayable = errors.New("request body is not replayable")
