package rate

import "errors"

// ErrRedisUnavailable wraps transport failures; callers fail closed on it.
var ErrRedisUnavailable = errors.New("redis unavailable")
