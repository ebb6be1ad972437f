// File: core/workerpool/backoff.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Small time.Timer wrapper so the idle path in Pool.loop can Reset
// safely without the classic stop/drain dance repeated at every call
// site.

package workerpool

import "time"

type backoffTimer struct {
	t *time.Timer
}

func newBackoffTimer() *backoffTimer {
	t := time.NewTimer(time.Second)
	if !t.Stop() {
		<-t.C
	}
	return &backoffTimer{t: t}
}

func (b *backoffTimer) Reset(d time.Duration) {
	if !b.t.Stop() {
		select {
		case <-b.t.C:
		default:
		}
	}
	b.t.Reset(d)
}

func (b *backoffTimer) C() <-chan time.Time { return b.t.C }

func (b *backoffTimer) Stop() {
	if !b.t.Stop() {
		select {
		case <-b.t.C:
		default:
		}
	}
}
