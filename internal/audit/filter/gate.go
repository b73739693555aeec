package filter

import (
	"sync/atomic"

	"github.com/crimson-sun/quill/internal/model"
)

// Gate applies the authorization-success rule. Every category except
// authCheck passes; authCheck failures always pass and successes pass only
// while the authorization-success flag is set.
//
// The flag is read once per call, so toggling it affects only later checks.
type Gate struct {
	authzSuccess atomic.Bool
}

// NewGate creates a Gate with the given initial flag.
func NewGate(auditAuthorizationSuccess bool) *Gate {
	g := &Gate{}
	g.authzSuccess.Store(auditAuthorizationSuccess)
	return g
}

// ShouldEmit reports whether an event of the given category and outcome is
// recorded.
func (g *Gate) ShouldEmit(atype string, result int) bool {
	if atype != model.AtypeAuthCheck {
		return true
	}
	return result != model.ResultOK || g.authzSuccess.Load()
}

// AuthorizationSuccess returns the current flag.
func (g *Gate) AuthorizationSuccess() bool {
	return g.authzSuccess.Load()
}

// SetAuthorizationSuccess stores v and returns the previous value.
func (g *Gate) SetAuthorizationSuccess(v bool) bool {
	return g.authzSuccess.Swap(v)
}
