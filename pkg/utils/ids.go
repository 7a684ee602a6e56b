package utils

import (
	"fmt"
	"sync/atomic"
	"time"
)

// idSeq reduces collisions when multiple ids are generated within the
// same nanosecond.
var idSeq uint64

// GenMessageID returns a new sortable message id.
func GenMessageID() string {
	n := time.Now().UTC().UnixNano()
	s := atomic.AddUint64(&idSeq, 1)
	return fmt.Sprintf("msg-%d-%d", n, s)
}

// GenSessionID returns a new sortable session id.
func GenSessionID() string {
	n := time.Now().UTC().UnixNano()
	s := atomic.AddUint64(&idSeq, 1)
	return fmt.Sprintf("ses-%d-%d", n, s)
}
